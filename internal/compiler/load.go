package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/strata/internal/meta"
)

// LoadResult holds a catalog loaded from a directory.
type LoadResult struct {
	Entities  []*meta.EntityMetadata
	Catalog   *meta.StaticCatalog
	CUEValue  cue.Value
	FileCount int
}

// LoadDir compiles the CUE package in dir into a catalog. Cross-entity
// rules from Validate are reported together as one error.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entities, err := CompileCatalog(value)
	if err != nil {
		return nil, err
	}
	if errs := Validate(entities); len(errs) > 0 {
		return nil, &CatalogErrors{Errors: errs}
	}

	cat, err := meta.NewCatalog(entities...)
	if err != nil {
		return nil, err
	}

	return &LoadResult{
		Entities:  entities,
		Catalog:   cat,
		CUEValue:  value,
		FileCount: len(files),
	}, nil
}

// CatalogErrors carries every validation error of a catalog.
type CatalogErrors struct {
	Errors []ValidationError
}

func (e *CatalogErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
