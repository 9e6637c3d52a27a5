package constants

// ConfigDirName is the name of the configuration directory in the operator's home directory.
const ConfigDirName = "." + ProjectName

// ConfigFileName is the name of the tool configuration file.
const ConfigFileName = "config.yaml"

// ConfigDirPath returns the full path to the tool configuration directory.
func ConfigDirPath(homeDir string) string {
	return homeDir + "/" + ConfigDirName
}

// ConfigFilePath returns the full path to the tool configuration file.
func ConfigFilePath(homeDir string) string {
	return ConfigDirPath(homeDir) + "/" + ConfigFileName
}

// ConfigDirPermissions is the file system permissions for the config directory (0750).
const ConfigDirPermissions = 0o750

// ConfigFilePermissions is the file system permissions for the config file (0600).
const ConfigFilePermissions = 0o600
