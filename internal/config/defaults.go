package config

const (
	defaultLoansFile         = "/tmp/libby.json"
	defaultCardsFile         = "/tmp/libby-cards.json"
	defaultLibraryConfig     = "config.json"
	defaultLibraryTemplate   = "config.template.json"
	defaultLogDir            = "~/.local/share/libbydl/logs"
	defaultLibbyCommand      = "odmpy"
	defaultExportTimeout     = 300
	defaultDockerBinary      = "docker"
	defaultComposeDir        = "."
	defaultService           = "odmpy-ng"
	defaultDownloadTimeout   = 30 * 60
	defaultBaseImage         = "selenium/standalone-chrome"
	defaultPinFile           = "image.pin"
	defaultPinRefreshHours   = 24
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	downloadRootEnv          = "AUDIOBOOK_FOLDER"
	loansFileEnv             = "LIBBY_EXPORT"
	defaultAudioExtensionMP3 = ".mp3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CardsFile:       defaultCardsFile,
			LibraryConfig:   defaultLibraryConfig,
			LibraryTemplate: defaultLibraryTemplate,
			LogDir:          defaultLogDir,
		},
		Libby: Libby{
			Command:       defaultLibbyCommand,
			ExportTimeout: defaultExportTimeout,
		},
		Downloader: Downloader{
			DockerBinary:    defaultDockerBinary,
			ComposeDir:      defaultComposeDir,
			Service:         defaultService,
			Timeout:         defaultDownloadTimeout,
			AudioExtensions: []string{defaultAudioExtensionMP3},
		},
		Image: Image{
			Base:         defaultBaseImage,
			PinFile:      defaultPinFile,
			RefreshHours: defaultPinRefreshHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
