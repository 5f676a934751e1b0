package index

const (
	DefaultFuzzyThreshold = 2
	DefaultMinScore       = 0.1
	DefaultMaxResults     = 50
	phoneticThreshold     = 0.7
)

// Boosts are the per-field score multipliers.
type Boosts struct {
	Name        float64 `json:"name" yaml:"name"`
	Type        float64 `json:"type" yaml:"type"`
	Location    float64 `json:"location" yaml:"location"`
	Description float64 `json:"description" yaml:"description"`
}

// DefaultBoosts weights name highest, then type, location and description.
func DefaultBoosts() Boosts {
	return Boosts{Name: 3.0, Type: 2.0, Location: 1.5, Description: 1.0}
}

// For returns the boost for f.
func (b Boosts) For(f Field) float64 {
	switch f {
	case FieldName:
		return b.Name
	case FieldType:
		return b.Type
	case FieldLocation:
		return b.Location
	case FieldDescription:
		return b.Description
	default:
		return 0
	}
}

// Options tune a single Search call.
type Options struct {
	FuzzyThreshold int
	MinScore       float64
	MaxResults     int
	Boosts         Boosts
	EnableFuzzy    bool
	EnablePhonetic bool
}

// DefaultOptions returns the engine-wide defaults.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: DefaultFuzzyThreshold,
		MinScore:       DefaultMinScore,
		MaxResults:     DefaultMaxResults,
		Boosts:         DefaultBoosts(),
		EnableFuzzy:    true,
		EnablePhonetic: true,
	}
}

// Option overrides one setting on top of a defaults profile.
type Option func(*Options)

// Apply returns a copy of o with opts applied in order.
func (o Options) Apply(opts ...Option) Options {
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func WithMaxResults(n int) Option {
	return func(o *Options) { o.MaxResults = n }
}

func WithMinScore(score float64) Option {
	return func(o *Options) { o.MinScore = score }
}

func WithFuzzyThreshold(distance int) Option {
	return func(o *Options) { o.FuzzyThreshold = distance }
}

func WithBoosts(b Boosts) Option {
	return func(o *Options) { o.Boosts = b }
}

func WithFuzzy(enabled bool) Option {
	return func(o *Options) { o.EnableFuzzy = enabled }
}

func WithPhonetic(enabled bool) Option {
	return func(o *Options) { o.EnablePhonetic = enabled }
}

// sanitized clamps out-of-range values instead of rejecting them.
func (o Options) sanitized() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.FuzzyThreshold < 0 {
		o.FuzzyThreshold = 0
	}
	if o.MinScore < 0 {
		o.MinScore = 0
	}
	o.Boosts.Name = max(o.Boosts.Name, 0)
	o.Boosts.Type = max(o.Boosts.Type, 0)
	o.Boosts.Location = max(o.Boosts.Location, 0)
	o.Boosts.Description = max(o.Boosts.Description, 0)
	return o
}
