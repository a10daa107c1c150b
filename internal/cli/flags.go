package cli

// Flags holds all command-line flag values
type Flags struct {
	// Global flags
	CfgFile     string
	LogLevel    string
	LogFormat   string
	StoreDriver string
	StorePath   string

	// Pin flags
	Latitude  float64
	Longitude float64
	Nearest   int
	BatchFile string

	// Export flags
	ExportDir string
	Archive   bool

	// Serve flags
	Addr string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		LogLevel:    "info",
		LogFormat:   "console",
		StoreDriver: "sqlite",
		Nearest:     5,
		Addr:        ":8080",
	}
}
