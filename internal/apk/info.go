package apk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/avast/apkverifier"

	"github.com/aetherlink/dexedit/internal/axml"
)

// Info is the extracted metadata summary of an APK.
type Info struct {
	PackageID   string
	VersionName string
	VersionCode int

	MinSDK    string
	TargetSDK string

	Permissions []string
	Activities  []string
	Services    []string
	Receivers   []string

	// Native architectures present under lib/.
	Architectures []string

	// SHA-256 of the signing certificate, lowercase hex. Empty when the
	// APK is unsigned or verification fails; an edited archive is
	// expected to be re-signed out of band.
	CertFingerprint string

	FilePath string
	FileSize int64
	SHA256   string

	DexEntries []string
}

// ParseInfo extracts metadata from an APK on disk.
func ParseInfo(path string) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("apk: %w", err)
	}
	sum, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("apk: %w", err)
	}

	c, err := Open(path)
	if err != nil {
		return nil, err
	}

	info := &Info{
		FilePath: path,
		FileSize: fi.Size(),
		SHA256:   sum,
	}
	if err := info.fill(c); err != nil {
		return nil, err
	}

	// Certificate fingerprint is best-effort: tools downstream re-sign.
	if res, err := apkverifier.Verify(path, nil); err == nil {
		if _, cert := apkverifier.PickBestApkCert(res.SignerCerts); cert != nil {
			sum := sha256.Sum256(cert.Raw)
			info.CertFingerprint = hex.EncodeToString(sum[:])
		}
	}

	return info, nil
}

// InfoFromBytes extracts metadata from an in-memory APK. Certificate
// verification is skipped: apkverifier wants a file.
func InfoFromBytes(data []byte) (*Info, error) {
	c, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	info := &Info{FileSize: int64(len(data))}
	sum := sha256.Sum256(data)
	info.SHA256 = hex.EncodeToString(sum[:])
	if err := info.fill(c); err != nil {
		return nil, err
	}
	return info, nil
}

func (info *Info) fill(c *Container) error {
	manifest, err := c.Extract("AndroidManifest.xml")
	if err != nil {
		return fmt.Errorf("apk: no AndroidManifest.xml")
	}
	doc, err := axml.Parse(manifest)
	if err != nil {
		return err
	}
	info.PackageID = doc.Package()
	info.VersionName = doc.VersionName()
	info.VersionCode = doc.VersionCode()
	info.MinSDK = doc.MinSDK()
	info.TargetSDK = doc.TargetSDK()
	info.Permissions = doc.Permissions()
	info.Activities = doc.Activities()
	info.Services = doc.Services()
	info.Receivers = doc.Receivers()

	archSet := make(map[string]struct{})
	for _, name := range c.List() {
		if strings.HasPrefix(name, "lib/") {
			parts := strings.Split(name, "/")
			if len(parts) >= 2 && parts[1] != "" {
				archSet[parts[1]] = struct{}{}
			}
		}
		if strings.HasSuffix(name, ".dex") && !strings.Contains(name, "/") {
			info.DexEntries = append(info.DexEntries, name)
		}
	}
	for arch := range archSet {
		info.Architectures = append(info.Architectures, arch)
	}
	sort.Strings(info.Architectures)
	sort.Strings(info.DexEntries)
	return nil
}

// IsArm64 reports whether the APK runs on arm64-v8a. APKs with no native
// libraries are architecture-independent.
func (info *Info) IsArm64() bool {
	for _, arch := range info.Architectures {
		if arch == "arm64-v8a" {
			return true
		}
	}
	return len(info.Architectures) == 0
}

// String renders a human-readable summary.
func (info *Info) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Package: %s\n", info.PackageID)
	fmt.Fprintf(&buf, "Version: %s (%d)\n", info.VersionName, info.VersionCode)
	fmt.Fprintf(&buf, "Min SDK: %s, Target SDK: %s\n", info.MinSDK, info.TargetSDK)
	fmt.Fprintf(&buf, "Permissions: %d\n", len(info.Permissions))
	for _, p := range info.Permissions {
		fmt.Fprintf(&buf, "  - %s\n", p)
	}
	fmt.Fprintf(&buf, "Activities: %d\n", len(info.Activities))
	fmt.Fprintf(&buf, "Services: %d\n", len(info.Services))
	fmt.Fprintf(&buf, "Receivers: %d\n", len(info.Receivers))
	fmt.Fprintf(&buf, "Architectures: %v\n", info.Architectures)
	fmt.Fprintf(&buf, "Runs on arm64: %t\n", info.IsArm64())
	fmt.Fprintf(&buf, "DEX entries: %v\n", info.DexEntries)
	if info.CertFingerprint != "" {
		fmt.Fprintf(&buf, "Certificate: %s\n", info.CertFingerprint)
	}
	if info.FileSize > 0 {
		fmt.Fprintf(&buf, "Size: %d bytes\n", info.FileSize)
	}
	if info.SHA256 != "" {
		fmt.Fprintf(&buf, "SHA256: %s\n", info.SHA256)
	}
	return buf.String()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
