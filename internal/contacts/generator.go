package contacts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Generation modes.
const (
	ModeGeometric = "geometric"
	ModeGaussian  = "gaussian"
)

// ErrInvalidGenerator is returned for generator settings that cannot produce a log.
var ErrInvalidGenerator = errors.New("invalid generator settings")

// Generator produces synthetic contact logs.
//
// In geometric mode durations follow Geometric(P) on {1, 2, ...}. In gaussian mode
// they are round(|N(0,1)| * 2 + 1), which is always at least 1.
type Generator struct {
	Subjects           int
	ContactsPerSubject int
	Peers              int
	Mode               string
	P                  float64
	Seed               uint64
}

// Validate checks the generator settings
func (g *Generator) Validate() error {
	if g.Subjects <= 0 {
		return fmt.Errorf("%w: subjects must be positive", ErrInvalidGenerator)
	}
	if g.ContactsPerSubject <= 0 {
		return fmt.Errorf("%w: contacts per subject must be positive", ErrInvalidGenerator)
	}
	if g.Peers < 0 {
		return fmt.Errorf("%w: peers must be non-negative", ErrInvalidGenerator)
	}
	switch g.Mode {
	case ModeGeometric:
		if g.P <= 0 || g.P >= 1 {
			return fmt.Errorf("%w: p must be strictly between 0 and 1", ErrInvalidGenerator)
		}
	case ModeGaussian:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidGenerator, g.Mode)
	}
	return nil
}

// Records draws the full log. The same seed always yields the same records.
func (g *Generator) Records() ([]Record, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	draw := g.durationFunc(src)

	peers := g.Peers
	if peers == 0 {
		peers = g.Subjects
	}

	records := make([]Record, 0, g.Subjects*g.ContactsPerSubject)
	for subject := 1; subject <= g.Subjects; subject++ {
		for range g.ContactsPerSubject {
			records = append(records, Record{
				Subject:  subject,
				Peer:     pickPeer(rng, subject, peers),
				Duration: draw(),
			})
		}
	}
	return records, nil
}

// Write draws the log and writes it in the input format.
func (g *Generator) Write(w io.Writer) (int, error) {
	records, err := g.Records()
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%d %d %d\n", r.Subject, r.Peer, r.Duration); err != nil {
			return 0, fmt.Errorf("failed to write contact log: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write contact log: %w", err)
	}
	return len(records), nil
}

func (g *Generator) durationFunc(src rand.Source) func() int {
	if g.Mode == ModeGaussian {
		normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
		return func() int {
			return int(math.Round(math.Abs(normal.Rand())*2 + 1))
		}
	}

	uniform := distuv.Uniform{Min: 0, Max: 1, Src: src}
	logq := math.Log1p(-g.P)
	return func() int {
		u := uniform.Rand()
		for u == 0 {
			u = uniform.Rand()
		}
		// inverse CDF of the trial count up to the first success
		return max(1, int(math.Ceil(math.Log(u)/logq)))
	}
}

// pickPeer draws a peer other than the subject when more than one ID is available.
func pickPeer(rng *rand.Rand, subject, peers int) int {
	if peers <= 1 {
		return subject + 1
	}
	for {
		peer := rng.IntN(peers) + 1
		if peer != subject {
			return peer
		}
	}
}
