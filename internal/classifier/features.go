package classifier

import (
	"vandalwatch/internal/models"
)

// Features is the vector handed to the model for one edit.
type Features struct {
	CommentLength float64 `json:"comment_length"`
	SizeDelta     float64 `json:"size_delta"`
	Anonymous     float64 `json:"anonymous"`
	EditorEdits   float64 `json:"editor_edits"`
	HourOfDay     float64 `json:"hour_of_day"`
	Weekend       float64 `json:"weekend"`
	IsRevert      float64 `json:"is_revert"`
	AllCapsRatio  float64 `json:"all_caps_ratio"`
}

// Extract builds the feature vector for md. IsRevert must already have
// been set by the detector stage.
func Extract(md models.EditMetadata) Features {
	f := Features{
		CommentLength: float64(len(md.Comment)),
		SizeDelta:     float64(md.SizeNew - md.SizeOld),
		EditorEdits:   float64(md.UserEditCount),
		HourOfDay:     float64(md.Timestamp.UTC().Hour()),
		AllCapsRatio:  capsRatio(md.Comment),
	}
	if md.UserIsAnon {
		f.Anonymous = 1
	}
	if wd := md.Timestamp.UTC().Weekday(); wd == 0 || wd == 6 {
		f.Weekend = 1
	}
	if md.IsRevert {
		f.IsRevert = 1
	}
	return f
}

// capsRatio is the share of letters in s that are upper case.
func capsRatio(s string) float64 {
	var letters, upper int
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		case r >= 'a' && r <= 'z':
			letters++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
