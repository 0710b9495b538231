package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunedeck/internal/cache"
	"tunedeck/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// trackNamespace scopes track ids derived from locators.
var trackNamespace = uuid.MustParse("6f1d7c2e-3b0a-5d4e-9a61-2c8f0e7b4d13")

// TrackID returns the stable id for a source locator. Rescanning the same
// file yields the same id, so play counts and playlist membership survive.
func TrackID(locator string) string {
	return uuid.NewSHA1(trackNamespace, []byte(locator)).String()
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
	artwork          *cache.ArtworkCache
}

// NewExtractor creates a new metadata extractor. artwork may be nil, in which
// case embedded pictures are ignored.
func NewExtractor(supportedFormats []string, artwork *cache.ArtworkCache, logger *logrus.Logger) *Extractor {
	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
		artwork:          artwork,
	}
}

// ExtractFromFile extracts metadata from an audio file on disk
func (e *Extractor) ExtractFromFile(filePath string) (models.Track, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return models.Track{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return models.Track{}, err
	}

	return e.Extract(file, filepath.Base(filePath), filePath, stat.Size())
}

// Extract reads tags and duration from r. Missing tags fall back to the
// "Artist - Title" filename convention; an undecodable duration is left at 0.
// Only I/O errors on r are returned.
func (e *Extractor) Extract(r io.ReadSeeker, name, locator string, size int64) (models.Track, error) {
	startTime := time.Now()
	log := e.logger.WithField("locator", locator)

	duration, err := e.calculateDuration(r, name, size)
	if err != nil {
		log.WithError(err).Debug("Failed to calculate duration, setting to 0")
		duration = 0
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return models.Track{}, fmt.Errorf("rewind %s: %w", name, err)
	}

	fileArtist, fileTitle := ParseFilename(name)
	track := models.Track{
		ID:        TrackID(locator),
		Title:     fileTitle,
		Artist:    fileArtist,
		Album:     models.UnknownAlbum,
		Duration:  duration,
		FileSize:  size,
		Locator:   locator,
		CreatedAt: time.Now(),
	}

	md, err := tag.ReadFrom(r)
	if err != nil {
		log.WithError(err).Debug("No tags found, using filename")
		return track, nil
	}

	if title := strings.TrimSpace(md.Title()); title != "" {
		track.Title = title
	}
	if artist := strings.TrimSpace(md.Artist()); artist != "" {
		track.Artist = artist
	} else if artist := strings.TrimSpace(md.AlbumArtist()); artist != "" {
		track.Artist = artist
	}
	if album := strings.TrimSpace(md.Album()); album != "" {
		track.Album = album
	}
	track.Genre = strings.TrimSpace(md.Genre())
	track.Year = md.Year()
	track.TrackNumber, _ = md.Track()

	if pic := md.Picture(); pic != nil && len(pic.Data) > 0 && e.artwork != nil {
		track.ArtworkID = e.artwork.Put(pic.Data, pic.MIMEType)
	}

	log.WithFields(logrus.Fields{
		"title":          track.Title,
		"artist":         track.Artist,
		"album":          track.Album,
		"duration":       track.Duration,
		"hasArtwork":     track.HasArtwork(),
		"processingTime": time.Since(startTime),
	}).Debug("Successfully extracted metadata")

	return track, nil
}

// ParseFilename derives artist and title from "Artist - Title.ext". Without
// the separator the bare name is the title and the artist is a placeholder.
func ParseFilename(name string) (artist, title string) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if a, t, ok := strings.Cut(base, " - "); ok {
		a, t = strings.TrimSpace(a), strings.TrimSpace(t)
		if a != "" && t != "" {
			return a, t
		}
	}
	base = strings.TrimSpace(base)
	if base == "" {
		base = name
	}
	return models.UnknownArtist, base
}

// calculateDuration calculates the duration of an audio stream in seconds
func (e *Extractor) calculateDuration(r io.ReadSeeker, name string, size int64) (int, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3":
		return durationMP3(r, size)
	case ".flac":
		return durationFLAC(r)
	case ".wav":
		return durationWAV(r, size)
	case ".m4a":
		return durationM4A(r)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration using frame decoding; fallback to average bitrate estimation only if frames fail entirely.
func durationMP3(r io.Reader, size int64) (int, error) {
	dec := mp3.NewDecoder(r)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return estimateFromSize(size, 192000) // assume 192 kbps
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	return int(total.Seconds()), nil
}

// FLAC duration via STREAMINFO metadata block
func durationFLAC(r io.Reader) (int, error) {
	stream, err := flac.New(r)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration from the header and the payload size
func durationWAV(r io.ReadSeeker, size int64) (int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	pcmBytes := size - 44
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	secs := float64(sampleFrames) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

// M4A duration from the mvhd atom inside moov.
func durationM4A(r io.ReadSeeker) (int, error) {
	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) != "moov" {
			if _, err := r.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		limit := int64(size) - 8
		for read := int64(0); read < limit; {
			if _, err := io.ReadFull(r, head); err != nil {
				return 0, err
			}
			subSize := binary.BigEndian.Uint32(head[0:4])
			if subSize < 8 {
				return 0, fmt.Errorf("invalid sub-atom size")
			}
			if string(head[4:8]) == "mvhd" {
				return readMVHD(r)
			}
			if _, err := r.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += int64(subSize)
		}
		return 0, fmt.Errorf("mvhd atom not found")
	}
}

func readMVHD(r io.ReadSeeker) (int, error) {
	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return 0, err
	}

	// flags, then creation and modification times
	skip := int64(3 + 4 + 4)
	durSize := 4
	if version[0] == 1 {
		skip = 3 + 8 + 8
		durSize = 8
	}
	if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
		return 0, err
	}

	buf := make([]byte, 4+durSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	timescale := binary.BigEndian.Uint32(buf[0:4])
	if timescale == 0 {
		return 0, fmt.Errorf("invalid timescale")
	}
	var units uint64
	if durSize == 8 {
		units = binary.BigEndian.Uint64(buf[4:])
	} else {
		units = uint64(binary.BigEndian.Uint32(buf[4:]))
	}
	secs := float64(units) / float64(timescale)
	return int(secs + 0.5), nil
}

// estimateFromSize provides last-resort estimation if parsing fails.
func estimateFromSize(size int64, bitrate int) (int, error) {
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return int((size * 8) / int64(bitrate)), nil
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	return IsSupported(filePath, e.supportedFormats)
}

// IsSupported reports whether the extension of name is in formats.
func IsSupported(name string, formats []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, format := range formats {
		if ext == strings.ToLower(format) {
			return true
		}
	}
	return false
}

// ContentType returns the MIME type for an audio file
func ContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
