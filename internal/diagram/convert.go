package diagram

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Conversion is the full result of converting one diagram text.
type Conversion struct {
	ID        string           `json:"id"`
	Diagram   *ParsedDiagram   `json:"diagram"`
	Placement *Placement       `json:"placement"`
	Elements  []schema.Element `json:"elements"`
}

// Converter runs the tokenize, build, layout and synthesize pipeline. It holds
// no per-call state and is safe for concurrent use.
type Converter struct {
	layout  LayoutConfig
	newRand func() *rand.Rand
	logger  *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithLayout overrides the layout geometry.
func WithLayout(cfg LayoutConfig) Option {
	return func(c *Converter) { c.layout = cfg }
}

// WithRandSource sets the factory called once per conversion for the
// generator that fills seed and versionNonce.
func WithRandSource(f func() *rand.Rand) Option {
	return func(c *Converter) { c.newRand = f }
}

// WithSeed makes every conversion draw from a PCG generator with a fixed seed,
// so identical text yields identical elements.
func WithSeed(seed1, seed2 uint64) Option {
	return WithRandSource(func() *rand.Rand { return rand.New(rand.NewPCG(seed1, seed2)) })
}

// WithLogger sets the logger used for conversion diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// NewConverter creates a Converter with default geometry and an entropy-seeded
// random source.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		layout:  DefaultLayout(),
		newRand: func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Layout returns the converter's geometry.
func (c *Converter) Layout() LayoutConfig { return c.layout }

// Convert parses text and returns positioned elements: shapes in node order,
// then connectors in edge order.
func (c *Converter) Convert(ctx context.Context, text string) (*Conversion, error) {
	start := time.Now()
	id := logging.ConversionID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = logging.WithConversionID(ctx, id)
	}

	pd, err := Parse(text)
	if err != nil {
		c.logger.DebugContext(ctx, "diagram conversion failed", slog.Any("error", err))
		return nil, err
	}

	placement := Layout(pd, c.layout)
	elems := Synthesize(pd, placement, c.layout, c.newRand())

	for _, s := range pd.Skipped {
		c.logger.DebugContext(ctx, "skipped diagram line", slog.Int("line", s.Line), slog.String("text", s.Text))
	}
	if len(placement.Unplaced) > 0 {
		c.logger.WarnContext(ctx, "nodes unreachable from first node use fallback position",
			slog.Any("nodes", placement.Unplaced))
	}
	c.logger.InfoContext(ctx, "diagram converted",
		slog.String("kind", string(pd.Kind)),
		slog.Int("nodes", len(pd.Nodes)),
		slog.Int("edges", len(pd.Edges)),
		slog.Int("elements", len(elems)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Conversion{ID: id, Diagram: pd, Placement: placement, Elements: elems}, nil
}

var defaultConverter = NewConverter()

// Convert turns diagram text into canvas elements with default settings.
// It fails with ErrEmptyInput or ErrNoNodesFound (wrapped in a
// *schema.FlowError).
func Convert(text string) ([]schema.Element, error) {
	conv, err := defaultConverter.Convert(context.Background(), text)
	if err != nil {
		return nil, err
	}
	return conv.Elements, nil
}
