package ir

// PipelineSpec is a compiled pipeline definition.
//
// A pipeline has exactly one source. The source is either inline data
// (Objects / Frames) or the output of another pipeline (Pipeline), which
// lets several pipelines branch off a shared upstream.
type PipelineSpec struct {
	Name      string         `json:"name"`
	Source    SourceSpec     `json:"source"`
	Modifiers []ModifierSpec `json:"modifiers"`
	Animation AnimationSpec  `json:"animation"`
}

// SourceSpec describes where a pipeline's data comes from.
type SourceSpec struct {
	Objects    []ObjectSpec       `json:"objects,omitempty"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
	Frames     []FrameSpec        `json:"frames,omitempty"`
	Pipeline   string             `json:"pipeline,omitempty"` // upstream pipeline name
}

// FrameSpec is one animation frame of a multi-frame source.
type FrameSpec struct {
	Objects    []ObjectSpec       `json:"objects"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
}

// ObjectSpec describes a data object.
// Kind "property" uses Name/Components/Values; kind "cell" uses Matrix/PBC.
type ObjectSpec struct {
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	Components int       `json:"components,omitempty"`
	Values     []float64 `json:"values,omitempty"`
	Matrix     []float64 `json:"matrix,omitempty"` // 3 cell vectors + origin, column-major
	PBC        []bool    `json:"pbc,omitempty"`
}

// ModifierSpec describes one modifier in the chain.
type ModifierSpec struct {
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Params   Object `json:"params,omitempty"`
}

// AnimationSpec configures the animation settings of a dataset.
type AnimationSpec struct {
	StartFrame    int `json:"start_frame"`
	EndFrame      int `json:"end_frame"`
	TicksPerFrame int `json:"ticks_per_frame,omitempty"`
}

// Object kinds understood by the assembler.
const (
	KindProperty = "property"
	KindCell     = "cell"
)

// Describe returns the canonical description of the pipeline definition.
func (p PipelineSpec) Describe() Object {
	mods := make(Array, len(p.Modifiers))
	for i, m := range p.Modifiers {
		mods[i] = m.Describe()
	}
	return Object{
		"name":      String(p.Name),
		"source":    p.Source.Describe(),
		"modifiers": mods,
		"animation": Object{
			"start_frame":     Int(p.Animation.StartFrame),
			"end_frame":       Int(p.Animation.EndFrame),
			"ticks_per_frame": Int(p.Animation.TicksPerFrame),
		},
	}
}

// Describe returns the canonical description of the source.
func (s SourceSpec) Describe() Object {
	obj := Object{}
	if s.Pipeline != "" {
		obj["pipeline"] = String(s.Pipeline)
	}
	if len(s.Objects) > 0 {
		obj["objects"] = describeObjects(s.Objects)
	}
	if len(s.Attributes) > 0 {
		obj["attributes"] = describeAttributes(s.Attributes)
	}
	if len(s.Frames) > 0 {
		frames := make(Array, len(s.Frames))
		for i, f := range s.Frames {
			frame := Object{"objects": describeObjects(f.Objects)}
			if len(f.Attributes) > 0 {
				frame["attributes"] = describeAttributes(f.Attributes)
			}
			frames[i] = frame
		}
		obj["frames"] = frames
	}
	return obj
}

// Describe returns the canonical description of the object.
func (o ObjectSpec) Describe() Object {
	obj := Object{
		"kind": String(o.Kind),
		"name": String(o.Name),
	}
	if o.Components > 0 {
		obj["components"] = Int(o.Components)
	}
	if len(o.Values) > 0 {
		obj["values"] = Floats(o.Values)
	}
	if len(o.Matrix) > 0 {
		obj["matrix"] = Floats(o.Matrix)
	}
	if len(o.PBC) > 0 {
		pbc := make(Array, len(o.PBC))
		for i, b := range o.PBC {
			pbc[i] = Bool(b)
		}
		obj["pbc"] = pbc
	}
	return obj
}

// Describe returns the canonical description of the modifier.
func (m ModifierSpec) Describe() Object {
	obj := Object{
		"type":     String(m.Type),
		"disabled": Bool(m.Disabled),
	}
	if m.Title != "" {
		obj["title"] = String(m.Title)
	}
	if len(m.Params) > 0 {
		obj["params"] = m.Params
	}
	return obj
}

func describeObjects(objs []ObjectSpec) Array {
	arr := make(Array, len(objs))
	for i, o := range objs {
		arr[i] = o.Describe()
	}
	return arr
}

func describeAttributes(attrs map[string]float64) Object {
	obj := make(Object, len(attrs))
	for k, v := range attrs {
		obj[k] = Float(v)
	}
	return obj
}
