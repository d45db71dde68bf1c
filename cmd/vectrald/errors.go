package main

import "errors"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errWALPathEmpty       = errors.New("data_dir cannot be empty")
)
