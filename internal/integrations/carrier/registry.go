package carrier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
)

// Registry dispatches fetches to the adapter registered for a carrier code.
// It is populated once at startup and read-only afterwards.
type Registry struct {
	clients map[string]Client
	aliases map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		clients: map[string]Client{},
		aliases: map[string]string{},
	}
}

// Register binds code (and optional aliases, e.g. the carrier's local name) to c.
func (r *Registry) Register(code string, c Client, aliases ...string) *Registry {
	code = normalize(code)
	r.clients[code] = c
	r.aliases[code] = code
	for _, a := range aliases {
		r.aliases[normalize(a)] = code
	}
	return r
}

// Resolve maps a user-supplied carrier name to its canonical code.
func (r *Registry) Resolve(name string) (string, error) {
	code, ok := r.aliases[normalize(name)]
	if !ok {
		return "", errors.Wrapf(ErrUnknownCarrier, "%q", name)
	}
	return code, nil
}

func (r *Registry) Fetch(ctx context.Context, carrierName, trackingNumber string) (*models.Parcel, error) {
	code, err := r.Resolve(carrierName)
	if err != nil {
		return nil, err
	}
	p, err := r.clients[code].Fetch(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NewSourceError(code, "fetch", fmt.Errorf("adapter returned no parcel"))
	}
	return p, nil
}

// Codes lists registered carrier codes, sorted.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.clients))
	for code := range r.clients {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
