package axml

// androidAttrNames maps android attribute resource ids (0x0101XXXX) to
// their names. Binary manifests built by aapt2 often reference attributes
// purely by resource id, with no matching name in the string pool, so
// attribute matching consults this table through the resource-id map
// chunk. The list covers the manifest attributes this package edits and
// matches on; it is deliberately not the full platform set.
var androidAttrNames = map[uint32]string{
	0x01010000: "theme",
	0x01010001: "label",
	0x01010002: "icon",
	0x01010003: "name",
	0x01010006: "permission",
	0x01010007: "readPermission",
	0x01010008: "writePermission",
	0x01010009: "protectionLevel",
	0x0101000A: "permissionGroup",
	0x0101000B: "sharedUserId",
	0x0101000C: "hasCode",
	0x0101000D: "persistent",
	0x0101000E: "enabled",
	0x0101000F: "debuggable",
	0x01010010: "exported",
	0x01010011: "process",
	0x01010012: "taskAffinity",
	0x01010013: "multiprocess",
	0x01010018: "authorities",
	0x0101001B: "grantUriPermissions",
	0x0101001D: "launchMode",
	0x0101001E: "screenOrientation",
	0x0101001F: "configChanges",
	0x01010020: "description",
	0x01010021: "targetPackage",
	0x01010024: "value",
	0x01010025: "resource",
	0x0101020C: "minSdkVersion",
	0x0101020D: "mimeType",
	0x01010211: "scheme",
	0x01010212: "host",
	0x01010213: "port",
	0x01010214: "path",
	0x0101021B: "versionCode",
	0x0101021C: "versionName",
	0x01010270: "targetSdkVersion",
	0x01010271: "maxSdkVersion",
	0x01010280: "allowBackup",
}

// attrNameForID resolves an android attribute resource id to its name, or
// "" when the id is not in the table.
func attrNameForID(id uint32) string {
	return androidAttrNames[id]
}
