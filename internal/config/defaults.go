package config

// Default values applied after unmarshal, before validation.
const (
	DefaultToolBinary        = "cargo"
	DefaultPublishingChannel = "stable"
	DefaultBranch            = "master"
	DefaultPublishOutputDir  = "./public-docs"
	DefaultDaemonListen      = ":8745"
	DefaultDaemonDataDir     = "./daemon-data"
)

// defaultSteps is the full step sequence used when a package declares none.
var defaultSteps = []string{"build", "doc", "test"}

func (c *Config) applyDefaults() {
	if c.Tool.Binary == "" {
		c.Tool.Binary = DefaultToolBinary
	}
	if c.Matrix.PublishingChannel == "" {
		c.Matrix.PublishingChannel = DefaultPublishingChannel
	}
	if len(c.Branches) == 0 {
		c.Branches = []string{DefaultBranch}
	}
	if c.Project.Repo == "" {
		c.Project.Repo = "."
	}

	for i := range c.Packages {
		pkg := &c.Packages[i]
		if len(pkg.Steps) == 0 {
			pkg.Steps = append([]string(nil), defaultSteps...)
		}
		if pkg.Dir == "" {
			pkg.Dir = pkg.Name
		}
	}

	// Delivery policy defaults mirror the usual CI conventions: quiet on
	// start, chatty on failure, and success only when it flips the state.
	if c.Notifications.On.Start == "" {
		c.Notifications.On.Start = "never"
	}
	if c.Notifications.On.Success == "" {
		c.Notifications.On.Success = "change"
	}
	if c.Notifications.On.Failure == "" {
		c.Notifications.On.Failure = "always"
	}

	if c.Publish.OutputDir == "" {
		c.Publish.OutputDir = DefaultPublishOutputDir
	}

	if c.Daemon != nil {
		if c.Daemon.Listen == "" {
			c.Daemon.Listen = DefaultDaemonListen
		}
		if c.Daemon.DataDir == "" {
			c.Daemon.DataDir = DefaultDaemonDataDir
		}
	}
}
