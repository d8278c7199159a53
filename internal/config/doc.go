// Package config loads service settings with viper from defaults, an
// optional config.yaml and STUDYPAL_* environment variables, then validates
// them with struct tags and the cross-field rules in Config.Validate.
package config
