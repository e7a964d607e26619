package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/flowstate/internal/ir"
)

// PipelinesField is the top-level CUE field holding pipeline definitions.
const PipelinesField = "pipeline"

// LoadDir loads the CUE package in dir and builds its value.
func LoadDir(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}
	return v, nil
}

// CompileString builds a CUE value from source text.
func CompileString(filename, src string) (cue.Value, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// CompilePipelines compiles every pipeline under the "pipeline" field of v
// in declaration order. With failFast set it stops at the first error;
// otherwise it returns every pipeline that compiled along with all errors.
func CompilePipelines(v cue.Value, failFast bool) ([]ir.PipelineSpec, []error) {
	pipelinesVal := v.LookupPath(cue.ParsePath(PipelinesField))
	if !pipelinesVal.Exists() {
		return nil, []error{&CompileError{
			Field:   PipelinesField,
			Message: "no pipelines defined",
			Pos:     v.Pos(),
		}}
	}
	iter, err := pipelinesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		specs []ir.PipelineSpec
		errs  []error
	)
	for iter.Next() {
		spec, err := CompilePipeline(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", PipelinesField, iter.Selector(), err))
			if failFast {
				return specs, errs
			}
			continue
		}
		specs = append(specs, *spec)
	}
	return specs, errs
}
