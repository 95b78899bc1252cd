package main

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Format     string // table or json
}

// ProcessFlags holds start command flags.
type ProcessFlags struct {
	Env     []string
	WorkDir string
	LogDir  string
}

// LogsFlags holds logs command flags.
type LogsFlags struct {
	Lines   int
	Follow  bool
	Rotated bool
	Rotate  bool
}

// ClearFlags holds clear command flags.
type ClearFlags struct {
	All bool
}

// ServeFlags holds serve/serve-status flags.
type ServeFlags struct {
	Port   int
	Daemon bool
	APIUrl string
	Token  string
}

// AuthFlags holds auth generate flags.
type AuthFlags struct {
	ExpiresIn int
}
