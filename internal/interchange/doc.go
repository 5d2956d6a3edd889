// Package interchange maps the token graph to and from the nested
// `$type/$value/$description/$extensions` JSON document. Dot-path segments
// become nested object keys; alias tokens carry `$value: "{target.path}"`
// so round-trips preserve the reference rather than the resolved value.
package interchange

// Extension keys used under `$extensions`. Extraction metadata (confidence,
// provenance, timestamps) lives under one vendor key; structural relations
// that cannot be derived from the value text (composes/base_multiple) live
// under another.
const (
	ExtensionExtraction = "com.copythat.extraction"
	ExtensionRelations  = "com.copythat.relations"
)
