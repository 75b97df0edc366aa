// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

const (
	FormatTXT = "txt"
	FormatCSV = "csv"

	utf8BOM          = "\uFEFF"
	storyboardHeader = "Shot_ID,Visual_Instruction,Voiceover_TH"
	scriptHeader     = "Shot_ID,Visual_Instruction_TH,Visual_Instruction_EN"
	thinRule         = "----------------------------------------"
	sceneRule        = "------------------------------------"
	thickRule        = "===================================="
)

// ErrExportDisabled is returned by Upload when no export bucket is
// configured.
var ErrExportDisabled = errors.New("export upload is not configured")

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9ก-๙ ]`)

// Export is a rendered download.
type Export struct {
	FileName    string
	ContentType string
	Body        []byte
}

// RenderExport renders record in format ("txt" or "csv").
func RenderExport(record model.Record, format string, now time.Time) (*Export, error) {
	var body string
	contentType := "text/plain; charset=utf-8"
	switch format {
	case FormatTXT, "":
		format = FormatTXT
		switch r := record.(type) {
		case *model.ScriptRecord:
			body = ScriptText(r)
		case *model.StoryboardRecord:
			body = StoryboardText(r)
		default:
			return nil, fmt.Errorf("cannot export record of kind %q", record.Kind())
		}
	case FormatCSV:
		contentType = "text/csv; charset=utf-8"
		switch r := record.(type) {
		case *model.ScriptRecord:
			body = ScriptCSV(r)
		case *model.StoryboardRecord:
			body = StoryboardCSV(r)
		default:
			return nil, fmt.Errorf("cannot export record of kind %q", record.Kind())
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return &Export{
		FileName:    ExportFileName(record.DisplayTitle(), format, now),
		ContentType: contentType,
		Body:        []byte(body),
	}, nil
}

// ExportFileName builds `<date>_<HH-MM>_<title>.<ext>` with the title reduced
// to latin letters, digits, Thai and spaces and cut to 30 characters.
func ExportFileName(title string, ext string, now time.Time) string {
	safe := []rune(unsafeTitleChars.ReplaceAllString(title, "_"))
	if len(safe) > 30 {
		safe = safe[:30]
	}
	return fmt.Sprintf("%s_%s_%s.%s", now.Format("2006-01-02"), now.Format("15-04"), string(safe), ext)
}

// Hashtags joins tags with a space, adding a leading # where missing.
func Hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		out = append(out, tag)
	}
	return strings.Join(out, " ")
}

func ScriptText(s *model.ScriptRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n%s\n", s.Title, thinRule)
	fmt.Fprintf(&b, "CONCEPT: %s\nHASHTAGS: %s\n\n", s.Description, Hashtags(s.TagList()))
	fmt.Fprintf(&b, "VOICE OVER:\n%s\n\n%s\nSHOTS:\n", s.VoiceOver, thinRule)
	shots := make([]string, 0, len(s.Shots))
	for i, shot := range s.Shots {
		shots = append(shots, fmt.Sprintf("[SHOT %d] TH: %s\n(EN: %s)", i+1, shot.TH, shot.EN))
	}
	b.WriteString(strings.Join(shots, "\n\n"))
	return b.String()
}

func StoryboardText(s *model.StoryboardRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", s.ConceptName)
	fmt.Fprintf(&b, "HASHTAGS: %s\n", Hashtags(s.TagList()))
	fmt.Fprintf(&b, "HOOK: %s\n", s.Hook)
	fmt.Fprintf(&b, "INSIGHT: %s\n", s.Insight)
	fmt.Fprintf(&b, "%s\n\n", thickRule)
	for i, scene := range s.Scenes {
		fmt.Fprintf(&b, "[SCENE %d] (~3-5s)\n", i+1)
		fmt.Fprintf(&b, "VISUAL: %s\n", scene.VisualPromptTH)
		fmt.Fprintf(&b, "VOICEOVER: \"%s\"\n", scene.VoiceOver)
		fmt.Fprintf(&b, "%s\n", sceneRule)
	}
	return b.String()
}

// ScriptCSV and StoryboardCSV wrap every text field in double quotes without
// escaping embedded quotes, which spreadsheet imports of the existing files
// rely on. Fields containing a quote therefore do not round-trip.
func ScriptCSV(s *model.ScriptRecord) string {
	var b strings.Builder
	b.WriteString(utf8BOM + scriptHeader + "\n")
	for i, shot := range s.Shots {
		fmt.Fprintf(&b, "%d,\"%s\",\"%s\"\n", i+1, shot.TH, shot.EN)
	}
	return b.String()
}

func StoryboardCSV(s *model.StoryboardRecord) string {
	var b strings.Builder
	b.WriteString(utf8BOM + storyboardHeader + "\n")
	for i, scene := range s.Scenes {
		visual := "Gen ใหม่: " + scene.VisualPromptTH
		if scene.AssetType == model.AssetUserImage {
			visual = fmt.Sprintf("ใช้รูป User ที่ %d", scene.AssetIndex)
		}
		fmt.Fprintf(&b, "%d,\"%s\",\"%s\"\n", i+1, visual, scene.VoiceOver)
	}
	return b.String()
}

// Exporter uploads rendered exports to Cloud Storage and hands out
// time-limited download links.
type Exporter struct {
	StorageClient *storage.Client                   // Client for interacting with Google Cloud Storage.
	IAMClient     *credentials.IamCredentialsClient // Signs URLs without a local key file; optional.
	SignerEmail   string                            // Service account that signs the URLs.
	Bucket        string                            // Export bucket; empty disables uploads.
	Expires       time.Duration                     // Lifetime of a signed URL.
}

// ObjectName is the bucket path of an upload.
func ObjectName(userID string, export *Export) string {
	return fmt.Sprintf("exports/%s/%s/%s", userID, uuid.NewString(), export.FileName)
}

// Upload writes export to the bucket and returns a V4 signed GET URL.
func (e *Exporter) Upload(ctx context.Context, userID string, export *Export) (string, error) {
	if e == nil || e.StorageClient == nil || e.Bucket == "" {
		return "", ErrExportDisabled
	}
	objectName := ObjectName(userID, export)

	w := e.StorageClient.Bucket(e.Bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = export.ContentType
	w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", export.FileName)
	if _, err := w.Write(export.Body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write gs://%s/%s: %w", e.Bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close gs://%s/%s: %w", e.Bucket, objectName, err)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(e.Expires),
	}
	if e.IAMClient != nil && e.SignerEmail != "" {
		opts.GoogleAccessID = e.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := e.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", e.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := e.StorageClient.Bucket(e.Bucket).SignedURL(objectName, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", e.Bucket, objectName, err)
	}
	return u, nil
}
