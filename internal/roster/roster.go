package roster

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

//go:embed default.yaml
var defaultRoster []byte

var ErrInvalidRoster = errors.New("invalid roster")

// Roster is the day's list of doctors and their fully formed slots.
type Roster struct {
	Doctors []Doctor `yaml:"doctors"`
}

type Doctor struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Specialization string `yaml:"specialization"`
	Slots          []Slot `yaml:"slots"`
}

type Slot struct {
	ID       string `yaml:"id"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Capacity int    `yaml:"capacity"`
}

func Decode(r io.Reader) (Roster, error) {
	var ros Roster
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ros); err != nil {
		return Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	if err := ros.Validate(); err != nil {
		return Roster{}, err
	}
	return ros, nil
}

func LoadFile(path string) (Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return Roster{}, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Default is the built-in roster used when no file is configured.
func Default() Roster {
	ros, err := Decode(bytes.NewReader(defaultRoster))
	if err != nil {
		panic(fmt.Sprintf("embedded roster: %v", err))
	}
	return ros
}

func (r Roster) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	return enc.Close()
}

// Validate checks what the engine cannot check on its own: required fields
// and start before end.
func (r Roster) Validate() error {
	for i, d := range r.Doctors {
		if d.ID == "" {
			return fmt.Errorf("%w: doctor #%d has no id", ErrInvalidRoster, i)
		}
		for _, s := range d.Slots {
			if s.ID == "" || s.Start == "" || s.End == "" {
				return fmt.Errorf("%w: doctor %s has a slot without id or times", ErrInvalidRoster, d.ID)
			}
			if s.Start >= s.End {
				return fmt.Errorf("%w: slot %s starts at %s but ends at %s", ErrInvalidRoster, s.ID, s.Start, s.End)
			}
		}
	}
	return nil
}

// Apply registers every doctor and slot with the engine, in roster order.
func (r Roster) Apply(e *allocation.Engine) error {
	for _, d := range r.Doctors {
		p := allocation.NewProvider(d.ID, d.Name, d.Specialization)
		for _, s := range d.Slots {
			slot, err := allocation.NewSlot(s.ID, d.ID, s.Start, s.End, s.Capacity)
			if err != nil {
				return fmt.Errorf("doctor %s: %w", d.ID, err)
			}
			p.AddSlot(slot)
		}
		if err := e.RegisterProvider(p); err != nil {
			return fmt.Errorf("register doctor %s: %w", d.ID, err)
		}
	}
	return nil
}

func (r Roster) SlotCount() int {
	n := 0
	for _, d := range r.Doctors {
		n += len(d.Slots)
	}
	return n
}
