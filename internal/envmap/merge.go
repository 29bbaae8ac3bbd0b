package envmap

// FilterSpec restricts which variables are merged. Names are matched
// case-sensitively against the variable name before key normalization.
type FilterSpec struct {
	Exclude map[string]struct{}
	Include map[string]struct{}
}

// NewFilterSpec builds a FilterSpec from name lists. Empty names are dropped.
func NewFilterSpec(exclude, include []string) FilterSpec {
	return FilterSpec{
		Exclude: toSet(exclude),
		Include: toSet(include),
	}
}

// Allows reports whether the variable called name passes the filter. An empty
// include set places no restriction.
func (f FilterSpec) Allows(name string) bool {
	if len(f.Exclude) > 0 {
		if _, ok := f.Exclude[name]; ok {
			return false
		}
	}
	if len(f.Include) > 0 {
		if _, ok := f.Include[name]; !ok {
			return false
		}
	}
	return true
}

// Outcome describes what Merge did with a variable.
type Outcome int

const (
	// Kept means the key was already present and left untouched.
	Kept Outcome = iota
	// Added means the key was absent and has been set.
	Added
	// Overridden means the key was present and has been replaced.
	Overridden
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Overridden:
		return "overridden"
	default:
		return "kept"
	}
}

// Merge writes value under key unless key is already present and override is false.
func Merge(env Environment, key, value string, override bool) (Outcome, error) {
	if _, present := env.Lookup(key); present {
		if !override {
			return Kept, nil
		}
		if err := env.Set(key, value); err != nil {
			return Kept, err
		}
		return Overridden, nil
	}
	if err := env.Set(key, value); err != nil {
		return Kept, err
	}
	return Added, nil
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}
