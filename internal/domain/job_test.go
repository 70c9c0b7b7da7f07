package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobProcessing, true},
		{JobPending, JobCanceled, true},
		{JobPending, JobStructuring, false},
		{JobPending, JobCompleted, false},
		{JobProcessing, JobStructuring, true},
		{JobProcessing, JobError, true},
		{JobProcessing, JobCanceled, true},
		{JobProcessing, JobCompleted, false},
		{JobProcessing, JobPending, false},
		{JobStructuring, JobCompleted, true},
		{JobStructuring, JobError, true},
		{JobStructuring, JobCanceled, false},
		{JobCompleted, JobProcessing, false},
		{JobCanceled, JobProcessing, false},
		{JobError, JobProcessing, false},
		{JobError, JobError, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobCompleted, JobCanceled, JobError} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobPending, JobProcessing, JobStructuring} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestKindForUpload(t *testing.T) {
	cases := []struct {
		mime, name string
		want       SourceKind
		ok         bool
	}{
		{"application/pdf", "notes.pdf", SourcePDF, true},
		{"", "notes.pdf", SourcePDF, true},
		{"application/vnd.openxmlformats-officedocument.presentationml.presentation", "deck", SourcePPTX, true},
		{"", "deck.pptx", SourcePPTX, true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "essay", SourceDOCX, true},
		{"", "essay.docx", SourceDOCX, true},
		{"audio/mpeg", "lecture", SourceAudio, true},
		{"", "lecture.mp3", SourceAudio, true},
		{"", "Lecture.M4A", SourceAudio, true},
		{"video/mp4", "seminar", SourceVideo, true},
		{"", "seminar.mkv", SourceVideo, true},
		{"application/octet-stream", "mystery.bin", "", false},
		{"application/vnd.ms-powerpoint", "old.ppt", "", false},
		{"application/msword", "old.doc", "", false},
		{"text/plain", "notes.txt", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		got, ok := KindForUpload(tc.mime, tc.name)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("KindForUpload(%q, %q) = (%s, %v), want (%s, %v)", tc.mime, tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSourceKindIsMedia(t *testing.T) {
	if !SourceAudio.IsMedia() || !SourceVideo.IsMedia() {
		t.Fatal("audio and video are media kinds")
	}
	for _, k := range []SourceKind{SourcePDF, SourcePPTX, SourceDOCX} {
		if k.IsMedia() {
			t.Fatalf("%s should not be a media kind", k)
		}
	}
}
