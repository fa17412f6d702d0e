package config

// Workbook drivers.
const (
	DriverXLSX   = "xlsx"
	DriverMemory = "memory"
)

// WorkbookConfig configures the spreadsheet automation surface.
type WorkbookConfig struct {
	Driver string `yaml:"driver"` // xlsx, memory
	Path   string `yaml:"path"`
	Sheet  string `yaml:"sheet"` // empty = active sheet

	// Context sampling bounds
	SampleRows  int `yaml:"sample_rows"`
	SampleCols  int `yaml:"sample_cols"`
	MaxFormulas int `yaml:"max_formulas"`

	// Largest range, in cells, a single command may touch.
	MaxCells int `yaml:"max_cells"`

	// Watch the file for external edits and reload on the next command.
	Watch           bool `yaml:"watch"`
	CreateIfMissing bool `yaml:"create_if_missing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	MaxConnections  int    `yaml:"max_connections"` // 0 = unlimited
}
