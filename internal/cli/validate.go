package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Entities int                        `json:"entities,omitempty"`
	Files    int                        `json:"files,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Cycles   []compiler.CycleWarning    `json:"cycles,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog-dir]",
		Short: "Validate an entity catalog",
		Long: `Compile a CUE entity catalog and check it for cross-entity errors:
duplicate classes, unknown relation targets, conflicting joins, shared
columns and tables, missing persistence units and collection ids.

Relation cycles are reported as warnings. Without an argument the catalog
directory of the config file is used.

Exit codes:
  0 - Catalog valid
  1 - Validation errors found
  2 - Command error (directory not found, CUE syntax error)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, err := LoadEnvConfig(rootOpts)
				if err != nil {
					return envFailure(f, err)
				}
				dir = cfg.Catalog
			}
			return runValidate(f, dir)
		},
	}

	return cmd
}

func runValidate(f *OutputFormatter, dir string) error {
	loaded, err := LoadCatalog(dir)
	if err != nil {
		var catErrs *compiler.CatalogErrors
		if errors.As(err, &catErrs) {
			return outputValidationErrors(f, catErrs.Errors)
		}
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			details := map[string]any{"field": compileErr.Field}
			if compileErr.Pos.IsValid() {
				details["file"] = compileErr.Pos.Filename()
				details["line"] = compileErr.Pos.Line()
			}
			_ = f.Error(ErrCodeCatalog, compileErr.Error(), details)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeCatalog, compileErr.Message))
		}
		return envFailure(f, err)
	}

	f.VerboseLog("Compiled %d entities from %d CUE file(s) in %s", len(loaded.Entities), loaded.FileCount, dir)

	result := ValidationResult{
		Valid:    true,
		Entities: len(loaded.Entities),
		Files:    loaded.FileCount,
		Cycles:   compiler.AnalyzeCycles(loaded.Entities),
	}
	if f.Format == "json" {
		return f.Success(result)
	}

	for _, c := range result.Cycles {
		fmt.Fprintf(f.Writer, "⚠ %s\n", c.Message)
	}
	fmt.Fprintf(f.Writer, "✓ Catalog valid (%d entities)\n", result.Entities)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(f *OutputFormatter, errs []compiler.ValidationError) error {
	if f.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, err := range errs {
		fmt.Fprintf(f.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
