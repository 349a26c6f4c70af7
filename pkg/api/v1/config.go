package v1

// Config layer sources, highest priority first
const (
	ConfigSourceDB      = "db"
	ConfigSourceFile    = "file"
	ConfigSourceDefault = "default"
)

// ConfigValue is one resolved config entry with the layer it came from
type ConfigValue struct {
	Value  interface{} `json:"value"`
	Source string      `json:"source"`
}

// ResolvedConfig maps namespace -> key -> resolved value
type ResolvedConfig map[string]map[string]ConfigValue

// PutConfigRequest writes a value into the database config layer
type PutConfigRequest struct {
	Value interface{} `json:"value" binding:"required"`
}

// ValidateConfigRequest checks a proposed config update without persisting it
type ValidateConfigRequest struct {
	Namespace string      `json:"namespace" binding:"required"`
	Key       string      `json:"key" binding:"required"`
	Value     interface{} `json:"value" binding:"required"`
}

// ValidateConfigResponse reports the outcome of a validation check
type ValidateConfigResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Tool is a named handler definition carrying its default task class
type Tool struct {
	Name        string `json:"name"`
	TaskClass   string `json:"task_class"`
	Description string `json:"description,omitempty"`
}

// TaskClass is a named timeout band for tasks
type TaskClass struct {
	Name        string `json:"name"`
	Timeout     int    `json:"timeout"`
	Description string `json:"description,omitempty"`
}
