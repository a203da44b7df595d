package models

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/datatypes"
)

// AnalysisRecord is one distinct analyzed image. Rows are append-only.
type AnalysisRecord struct {
	ID                uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageFingerprint  string         `gorm:"type:char(64);not null;uniqueIndex:uq_image_fingerprint" json:"image_fingerprint"`
	CaptionText       *string        `gorm:"type:text" json:"caption_text"`
	CaptionConfidence *float64       `json:"caption_confidence"`
	ReadText          datatypes.JSON `json:"read_text,omitempty"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
}

func (AnalysisRecord) TableName() string {
	return "image_analysis_results"
}

type Caption struct {
	Text       *string  `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TextLine is one line of recognized text with its bounding polygon.
type TextLine struct {
	Text        string  `json:"text"`
	BoundingBox []Point `json:"bounding_box"`
}

// NewAnalysisRecord builds an unsaved record. An empty lines slice leaves
// read_text NULL.
func NewAnalysisRecord(fingerprint string, caption Caption, lines []TextLine) (*AnalysisRecord, error) {
	record := &AnalysisRecord{
		ImageFingerprint:  fingerprint,
		CaptionText:       caption.Text,
		CaptionConfidence: caption.Confidence,
		CreatedAt:         time.Now().UTC(),
	}

	if len(lines) > 0 {
		raw, err := json.Marshal(lines)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal read text")
		}
		record.ReadText = datatypes.JSON(raw)
	}

	return record, nil
}

func (r *AnalysisRecord) Caption() Caption {
	return Caption{
		Text:       r.CaptionText,
		Confidence: r.CaptionConfidence,
	}
}

// Lines decodes read_text. A NULL column yields nil.
func (r *AnalysisRecord) Lines() ([]TextLine, error) {
	if len(r.ReadText) == 0 || string(r.ReadText) == "null" {
		return nil, nil
	}

	var lines []TextLine
	if err := json.Unmarshal(r.ReadText, &lines); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal read text", goerr.V("record_id", r.ID))
	}
	return lines, nil
}
