// Package config provides configuration parsing for partkit projects.
//
// The configuration is stored in partkit.json at the project root.
// This package handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "name": "my-board",
//	  "mode": "project",
//	  "library": {
//	    "prefix": "LCSC_",
//	    "folder": "library",
//	    "toolVersion": "9.0"
//	  },
//	  "generator": {
//	    "backend": "exec",
//	    "command": "easyeda2kicad",
//	    "timeout": "3m"
//	  },
//	  "serve": {
//	    "host": "localhost",
//	    "port": 8075
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Prefix:", cfg.Library.Prefix)
package config
