package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Path Resolution Errors (PK001-PK019)
	// ============================================

	"PK001": {
		Category: CategoryResolve,
		Message:  "Unsupported platform",
		Detail:   "No system library location is known for this operating system. Project mode works everywhere; system mode needs a recognized third-party directory layout.",
		DocURL:   "https://partkit.dev/docs/errors/PK001",
	},
	"PK002": {
		Category: CategoryResolve,
		Message:  "Home directory unknown",
		Detail:   "The user home directory could not be determined, so system-mode library paths cannot be computed.",
		DocURL:   "https://partkit.dev/docs/errors/PK002",
	},
	"PK003": {
		Category: CategoryResolve,
		Message:  "Invalid tool version",
		Detail:   "The KiCad version must start with a numeric major component, like \"9.0\".",
		DocURL:   "https://partkit.dev/docs/errors/PK003",
	},

	// ============================================
	// Generation Errors (PK020-PK039)
	// ============================================

	"PK020": {
		Category: CategoryGenerate,
		Message:  "Converter not found",
		Detail:   "The easyeda2kicad converter is not installed or not in PATH.",
		DocURL:   "https://partkit.dev/docs/errors/PK020",
	},
	"PK021": {
		Category: CategoryGenerate,
		Message:  "Generation failed",
		Detail:   "The converter exited with an error while producing library files. No library tables were modified.",
		DocURL:   "https://partkit.dev/docs/errors/PK021",
	},
	"PK022": {
		Category: CategoryGenerate,
		Message:  "Part not found in catalog",
		Detail:   "The catalog has no component with this part number. LCSC part numbers look like C2040.",
		DocURL:   "https://partkit.dev/docs/errors/PK022",
	},
	"PK023": {
		Category: CategoryGenerate,
		Message:  "No artifacts produced",
		Detail:   "The converter finished without writing the expected symbol or footprint files.",
		DocURL:   "https://partkit.dev/docs/errors/PK023",
	},
	"PK024": {
		Category: CategoryGenerate,
		Message:  "Import cancelled",
		Detail:   "The import was cancelled before the converter finished. Partial staging output was discarded.",
		DocURL:   "https://partkit.dev/docs/errors/PK024",
	},

	// ============================================
	// Artifact Write Errors (PK040-PK059)
	// ============================================

	"PK040": {
		Category: CategoryWrite,
		Message:  "Artifact write failed",
		Detail:   "A library file could not be placed in its destination directory. No library table was modified.",
		DocURL:   "https://partkit.dev/docs/errors/PK040",
	},
	"PK041": {
		Category: CategoryWrite,
		Message:  "Library directory not writable",
		Detail:   "The destination library directory could not be created or opened for writing.",
		DocURL:   "https://partkit.dev/docs/errors/PK041",
	},

	// ============================================
	// Library Table Errors (PK060-PK079)
	// ============================================

	"PK060": {
		Category: CategoryTable,
		Message:  "Library table parse failed",
		Detail:   "The library table contains a structure this tool does not understand. The file was left untouched.",
		DocURL:   "https://partkit.dev/docs/errors/PK060",
	},
	"PK061": {
		Category: CategoryTable,
		Message:  "Library table write failed",
		Detail:   "The updated library table could not be written back to disk. The original file is unchanged.",
		DocURL:   "https://partkit.dev/docs/errors/PK061",
	},

	// ============================================
	// Configuration Errors (PK080-PK099)
	// ============================================

	"PK080": {
		Category: CategoryConfig,
		Message:  "Invalid partkit.json",
		Detail:   "The partkit.json configuration file is malformed.",
		DocURL:   "https://partkit.dev/docs/errors/PK080",
	},
	"PK081": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   "https://partkit.dev/docs/errors/PK081",
	},
	"PK082": {
		Category: CategoryConfig,
		Message:  "Invalid storage mode",
		Detail:   "The storage mode must be either \"project\" or \"system\".",
		DocURL:   "https://partkit.dev/docs/errors/PK082",
	},
	"PK083": {
		Category: CategoryConfig,
		Message:  "Invalid library prefix",
		Detail:   "Library prefixes may only contain letters, digits, dots, dashes and underscores.",
		DocURL:   "https://partkit.dev/docs/errors/PK083",
	},

	// ============================================
	// CLI Errors (PK100-PK119)
	// ============================================

	"PK100": {
		Category: CategoryCLI,
		Message:  "Not a partkit project",
		Detail:   "The current directory has no partkit.json. Run 'partkit init' first, or pass --project.",
		DocURL:   "https://partkit.dev/docs/errors/PK100",
	},
	"PK101": {
		Category: CategoryCLI,
		Message:  "Project already initialized",
		Detail:   "This directory already contains a partkit.json.",
		DocURL:   "https://partkit.dev/docs/errors/PK101",
	},
	"PK102": {
		Category: CategoryCLI,
		Message:  "Invalid part number",
		Detail:   "LCSC part numbers are a 'C' followed by digits, like C2040 or C12345.",
		DocURL:   "https://partkit.dev/docs/errors/PK102",
	},
	"PK103": {
		Category: CategoryCLI,
		Message:  "Import failed",
		Detail:   "One or more parts could not be imported. The summary lists each failure.",
		DocURL:   "https://partkit.dev/docs/errors/PK103",
	},

	// ============================================
	// Server Errors (PK120-PK139)
	// ============================================

	"PK120": {
		Category: CategoryServe,
		Message:  "Invalid listen address",
		Detail:   "The configured listen address is invalid or the port is already in use.",
		DocURL:   "https://partkit.dev/docs/errors/PK120",
	},
	"PK121": {
		Category: CategoryServe,
		Message:  "Invalid request body",
		Detail:   "The request payload could not be decoded.",
		DocURL:   "https://partkit.dev/docs/errors/PK121",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
