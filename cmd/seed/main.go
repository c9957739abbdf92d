package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/opd-token-allocation/internal/logging"
	"github.com/hackgods/opd-token-allocation/internal/roster"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type seedConfig struct {
	Doctors     int
	SlotsPerDay int
	SlotMinutes int
	DayStart    int // minutes after midnight
	MinCapacity int
	MaxCapacity int
	Seed        uint64
	Out         string
}

func main() {
	// stdout carries the roster.
	logger := logging.NewWithWriter(os.Stderr, os.Getenv("APP_ENV"), "info")

	var cfg seedConfig
	flag.IntVar(&cfg.Doctors, "doctors", 10, "number of doctors")
	flag.IntVar(&cfg.SlotsPerDay, "slots", 6, "slots per doctor")
	flag.IntVar(&cfg.SlotMinutes, "slot-minutes", 60, "length of each slot")
	flag.IntVar(&cfg.DayStart, "day-start", 9*60, "first slot start, minutes after midnight")
	flag.IntVar(&cfg.MinCapacity, "min-capacity", 8, "smallest slot capacity")
	flag.IntVar(&cfg.MaxCapacity, "max-capacity", 20, "largest slot capacity")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "faker seed, 0 for random")
	flag.StringVar(&cfg.Out, "out", "", "output file, stdout when empty")
	flag.Parse()

	ros, err := generate(gofakeit.New(cfg.Seed), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("generate roster")
	}

	var w io.Writer = os.Stdout
	if cfg.Out != "" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			logger.Fatal().Err(err).Msg("create output file")
		}
		defer f.Close()
		w = f
	}

	if err := ros.Encode(w); err != nil {
		logger.Fatal().Err(err).Msg("write roster")
	}
	logger.Info().Int("doctors", len(ros.Doctors)).Int("slots", ros.SlotCount()).Str("out", cfg.Out).Msg("roster generated")
}

func generate(f *gofakeit.Faker, cfg seedConfig) (roster.Roster, error) {
	if cfg.Doctors <= 0 || cfg.SlotsPerDay <= 0 || cfg.SlotMinutes <= 0 {
		return roster.Roster{}, fmt.Errorf("doctors, slots and slot-minutes must be positive")
	}
	if cfg.MinCapacity <= 0 || cfg.MaxCapacity < cfg.MinCapacity {
		return roster.Roster{}, fmt.Errorf("capacity range %d..%d is invalid", cfg.MinCapacity, cfg.MaxCapacity)
	}
	if last := cfg.DayStart + cfg.SlotsPerDay*cfg.SlotMinutes; last > 24*60 {
		return roster.Roster{}, fmt.Errorf("schedule runs past midnight (%d minutes)", last)
	}

	ros := roster.Roster{Doctors: make([]roster.Doctor, 0, cfg.Doctors)}
	slotSeq := 0
	for i := 0; i < cfg.Doctors; i++ {
		doc := roster.Doctor{
			ID:             fmt.Sprintf("DOC%03d", i+1),
			Name:           "Dr. " + f.FirstName() + " " + f.LastName(),
			Specialization: specialties[f.Number(0, len(specialties)-1)],
		}
		for j := 0; j < cfg.SlotsPerDay; j++ {
			slotSeq++
			start := cfg.DayStart + j*cfg.SlotMinutes
			doc.Slots = append(doc.Slots, roster.Slot{
				ID:       fmt.Sprintf("SLOT%03d", slotSeq),
				Start:    clock(start),
				End:      clock(start + cfg.SlotMinutes),
				Capacity: f.Number(cfg.MinCapacity, cfg.MaxCapacity),
			})
		}
		ros.Doctors = append(ros.Doctors, doc)
	}

	return ros, ros.Validate()
}

// clock formats minutes after midnight as HH:MM.
func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
