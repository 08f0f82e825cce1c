package export

import (
	"time"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

func sampleRecord() estimate.Record {
	created := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	return estimate.Record{
		ID:        "0b7f3c1e-8f1a-4d59-9a43-3c8f4b1e2d10",
		CreatedAt: created,
		OwnerID:   "user-1",
		Transcripts: []transcript.Entry{
			{Role: transcript.RoleAssistant, Text: "What would you like to build?", Timestamp: created.UnixMilli()},
			{Role: transcript.RoleUser, Text: "A booking app for my salon.", Timestamp: created.Add(5 * time.Second).UnixMilli()},
		},
		Result: estimate.Result{
			ProjectSummary: "Booking app for a salon",
			Estimation: estimate.Estimation{
				Timeframe:  "6-8 weeks",
				Complexity: "Medium",
				Cost:       "$15,000",
				Features:   []string{"Online booking", "Reminders", "Staff calendar"},
			},
			FullSummary: "The client wants a mobile friendly booking app.",
		},
	}
}
