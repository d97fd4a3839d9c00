package domain

// FieldValue is one status reading.
type FieldValue struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// SettingValue is one configuration field with its factory default.
type SettingValue struct {
	Value   string `json:"value"`
	Unit    string `json:"unit"`
	Default string `json:"default"`
}

// StatusSnapshot is keyed by normalized status field keys.
type StatusSnapshot map[string]FieldValue

// SettingsSnapshot is keyed by normalized settings field keys.
type SettingsSnapshot map[string]SettingValue
