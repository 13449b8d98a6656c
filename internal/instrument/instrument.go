// Package instrument holds the General MIDI program table that maps each
// program number onto a buzzer oscillation profile.
package instrument

import (
	"math"
	"strings"
)

// Forever marks a profile whose notes sound until released.
const Forever int32 = math.MaxInt32

// Profile describes how a program sounds on a square-wave buzzer.
type Profile struct {
	Name string
	// BasePeriod is the oscillation period in microseconds at key 64.
	BasePeriod uint16
	// Duration is the maximum note lifetime in microseconds, or Forever.
	Duration int32
	// SemitoneDelta is subtracted from the period per semitone above 64.
	SemitoneDelta int16
}

// Indefinite reports whether notes on this profile never expire on their own.
func (p Profile) Indefinite() bool {
	return p.Duration == Forever
}

type family struct {
	base     uint16
	duration int32
	delta    int16
}

var (
	sustained  = family{base: 3800, duration: Forever, delta: 50}
	chromatic  = family{base: 2400, duration: 250_000, delta: 30}
	bass       = family{base: 7600, duration: Forever, delta: 100}
	pipe       = family{base: 1900, duration: Forever, delta: 25}
	percussive = family{base: 5000, duration: 120_000, delta: 40}
	effect     = family{base: 3800, duration: 500_000, delta: 50}
)

func p(name string, f family) Profile {
	return Profile{Name: name, BasePeriod: f.base, Duration: f.duration, SemitoneDelta: f.delta}
}

var table = [128]Profile{
	// Piano
	p("Acoustic Grand", sustained),
	p("Bright Acoustic", sustained),
	p("Electric Grand", sustained),
	p("Honky-Tonk", sustained),
	p("Electric Piano 1", sustained),
	p("Electric Piano 2", sustained),
	p("Harpsichord", sustained),
	p("Clavinet", sustained),

	// Chromatic Percussion
	p("Celesta", chromatic),
	p("Glockenspiel", chromatic),
	p("Music Box", chromatic),
	p("Vibraphone", chromatic),
	p("Marimba", chromatic),
	p("Xylophone", chromatic),
	p("Tubular Bells", chromatic),
	p("Dulcimer", chromatic),

	// Organ
	p("Drawbar Organ", sustained),
	p("Percussive Organ", sustained),
	p("Rock Organ", sustained),
	p("Church Organ", sustained),
	p("Reed Organ", sustained),
	p("Accordion", sustained),
	p("Harmonica", sustained),
	p("Tango Accordion", sustained),

	// Guitar
	p("Nylon String Guitar", sustained),
	p("Steel String Guitar", sustained),
	p("Electric Jazz Guitar", sustained),
	p("Electric Clean Guitar", sustained),
	p("Electric Muted Guitar", sustained),
	p("Overdriven Guitar", sustained),
	p("Distortion Guitar", sustained),
	p("Guitar Harmonics", sustained),

	// Bass
	p("Acoustic Bass", bass),
	p("Electric Bass (finger)", bass),
	p("Electric Bass (pick)", bass),
	p("Fretless Bass", bass),
	p("Slap Bass 1", bass),
	p("Slap Bass 2", bass),
	p("Synth Bass 1", bass),
	p("Synth Bass 2", bass),

	// Solo Strings
	p("Violin", sustained),
	p("Viola", sustained),
	p("Cello", sustained),
	p("Contrabass", bass),
	p("Tremolo Strings", sustained),
	{Name: "Pizzicato Strings", BasePeriod: 3800, Duration: 150_000, SemitoneDelta: 50},
	p("Orchestral Strings", sustained),
	{Name: "Timpani", BasePeriod: 7600, Duration: 300_000, SemitoneDelta: 100},

	// Ensemble
	p("String Ensemble 1", sustained),
	p("String Ensemble 2", sustained),
	p("SynthStrings 1", sustained),
	p("SynthStrings 2", sustained),
	p("Choir Aahs", sustained),
	p("Voice Oohs", sustained),
	p("Synth Voice", sustained),
	{Name: "Orchestra Hit", BasePeriod: 3800, Duration: 200_000, SemitoneDelta: 50},

	// Brass
	p("Trumpet", sustained),
	p("Trombone", sustained),
	p("Tuba", bass),
	p("Muted Trumpet", sustained),
	p("French Horn", sustained),
	p("Brass Section", sustained),
	p("SynthBrass 1", sustained),
	p("SynthBrass 2", sustained),

	// Reed
	p("Soprano Sax", sustained),
	p("Alto Sax", sustained),
	p("Tenor Sax", sustained),
	p("Baritone Sax", sustained),
	p("Oboe", sustained),
	p("English Horn", sustained),
	p("Bassoon", bass),
	p("Clarinet", sustained),

	// Pipe
	p("Piccolo", pipe),
	p("Flute", pipe),
	p("Recorder", pipe),
	p("Pan Flute", pipe),
	p("Blown Bottle", pipe),
	p("Shakuhachi", pipe),
	p("Whistle", pipe),
	p("Ocarina", pipe),

	// Synth Lead
	p("Square Wave", sustained),
	p("Saw Wave", sustained),
	p("Syn. Calliope", sustained),
	p("Chiffer Lead", sustained),
	p("Charang", sustained),
	p("Solo Vox", sustained),
	p("5th Saw Wave", sustained),
	p("Bass & Lead", sustained),

	// Synth Pad
	p("Fantasia", sustained),
	p("Warm Pad", sustained),
	p("Polysynth", sustained),
	p("Space Voice", sustained),
	p("Bowed Glass", sustained),
	p("Metal Pad", sustained),
	p("Halo Pad", sustained),
	p("Sweep Pad", sustained),

	// Synth Effects
	p("Ice Rain", sustained),
	p("Soundtrack", sustained),
	p("Crystal", sustained),
	p("Atmosphere", sustained),
	p("Brightness", sustained),
	p("Goblin", sustained),
	p("Echo Drops", sustained),
	p("Star Theme", sustained),

	// Ethnic
	p("Sitar", sustained),
	p("Banjo", sustained),
	p("Shamisen", sustained),
	p("Koto", sustained),
	p("Kalimba", chromatic),
	p("Bagpipe", sustained),
	p("Fiddle", sustained),
	p("Shanai", sustained),

	// Percussive
	p("Tinkle Bell", percussive),
	p("Agogo", percussive),
	p("Steel Drums", percussive),
	p("Woodblock", percussive),
	p("Taiko Drum", percussive),
	p("Melodic Tom", percussive),
	p("Synth Drum", percussive),
	p("Reverse Cymbal", percussive),

	// Sound Effects
	p("Guitar Fret Noise", effect),
	p("Breath Noise", effect),
	p("Seashore", effect),
	p("Bird Tweet", effect),
	p("Telephone Ring", effect),
	p("Helicopter", effect),
	p("Applause", effect),
	p("Gunshot", effect),
}

// For returns the profile for a program number. Only the low 7 bits are used.
func For(program uint8) Profile {
	return table[program&0x7F]
}

// Default is the profile every channel starts with before a ProgramChange.
func Default() Profile {
	return table[0]
}

// Lookup finds a profile by name, ignoring case and surrounding space.
func Lookup(name string) (Profile, uint8, bool) {
	name = strings.TrimSpace(name)
	for i, prof := range table {
		if strings.EqualFold(prof.Name, name) {
			return prof, uint8(i), true //nolint:gosec // i < 128
		}
	}
	return Profile{}, 0, false
}

// All returns a copy of the whole table, indexed by program number.
func All() []Profile {
	out := make([]Profile, len(table))
	copy(out, table[:])
	return out
}
