package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/gateway"
)

// ArtifactResult is one produced artifact inside the final payload.
type ArtifactResult struct {
	Name         string            `json:"name"`
	GenerationID core.GenerationID `json:"generation_id,omitempty"`
	Content      string            `json:"content,omitempty"`
	URL          string            `json:"url,omitempty"`
	Status       core.VersionStatus `json:"status"`
	PageCount    *int              `json:"page_count,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Payload is the structured final stream line: the caller's only success
// signal.
type Payload struct {
	SessionID      core.SessionID  `json:"session_id"`
	GenerationID   core.GenerationID `json:"generation_id"`
	Mode           core.Mode       `json:"mode"`
	CV             ArtifactResult  `json:"cv"`
	CoverLetter    *ArtifactResult `json:"cover_letter,omitempty"`
	ColdEmail      *ArtifactResult `json:"cold_email,omitempty"`
	ChangeSummary  string          `json:"change_summary,omitempty"`
	ContactSummary string          `json:"contact_summary,omitempty"`
	Contact        *core.Contact   `json:"contact,omitempty"`
}

func (p Payload) artifactRefs() map[string]string {
	refs := map[string]string{}
	if p.CV.URL != "" {
		refs[string(core.ArtifactCV)] = p.CV.URL
	}
	if p.CoverLetter != nil && p.CoverLetter.URL != "" {
		refs[string(core.ArtifactCoverLetter)] = p.CoverLetter.URL
	}
	if p.ColdEmail != nil && p.ColdEmail.URL != "" {
		refs[string(core.ArtifactColdEmail)] = p.ColdEmail.URL
	}
	return refs
}

// runStages executes the staged sequence. Best-effort stages log and
// degrade; CV generation, cover letter, and cold email failures propagate to
// the terminal handler. A CV *render* failure is captured as a failed
// version, not an error, so the session still carries an inspectable
// artifact.
func (o *Orchestrator) runStages(ctx context.Context, owner core.OwnerID, req core.GenerationRequest, sink emitter) (Payload, error) {
	payload := Payload{
		SessionID:    req.SessionID,
		GenerationID: req.GenerationID,
		Mode:         req.Mode,
	}

	// External calls run on a non-cancellable context: an in-flight model or
	// render call is never preempted, and a dead caller is only observed at
	// the next boundary check.
	callCtx := context.WithoutCancel(ctx)

	// Stage 1: context confirmation.
	if err := checkCancelled(ctx, "confirm context"); err != nil {
		return payload, err
	}
	sink.Emit(contextLine(req))
	o.logChat(owner, req, "info", contextLine(req))

	// Stage 2: research brief, best-effort.
	if err := checkCancelled(ctx, "research brief"); err != nil {
		return payload, err
	}
	brief := o.researchBrief(callCtx, req, sink)

	// Stage 3: tailored CV through the render-and-fix loop.
	if err := checkCancelled(ctx, "generate cv"); err != nil {
		return payload, err
	}
	cvResult, err := o.generateCV(callCtx, owner, req, brief, sink)
	if err != nil {
		return payload, err
	}
	payload.CV = cvResult

	// Stage 4: change summary, best-effort.
	if err := checkCancelled(ctx, "change summary"); err != nil {
		return payload, err
	}
	payload.ChangeSummary = o.changeSummary(callCtx, req, cvResult.Content)

	// Stage 5: contact enrichment, cold outreach only, best-effort.
	if err := checkCancelled(ctx, "contact enrichment"); err != nil {
		return payload, err
	}
	contact := o.enrichContact(callCtx, req, sink)

	// Stage 6: contact intelligence, cold outreach only, best-effort.
	if err := checkCancelled(ctx, "contact summary"); err != nil {
		return payload, err
	}
	payload.ContactSummary = o.contactSummary(callCtx, req, contact)
	if req.Mode == core.ModeColdOutreach && !contact.Empty() {
		payload.Contact = &contact
	}

	// Stage 7: cover letter or cold email, mutually exclusive by mode.
	if err := checkCancelled(ctx, "outreach document"); err != nil {
		return payload, err
	}
	if req.Mode == core.ModeColdOutreach {
		result, err := o.generateOutreach(callCtx, owner, req, core.ArtifactColdEmail,
			coldEmailPrompt(req, brief, contact, payload.ContactSummary), sink)
		if err != nil {
			return payload, err
		}
		payload.ColdEmail = &result
	} else {
		result, err := o.generateOutreach(callCtx, owner, req, core.ArtifactCoverLetter,
			coverLetterPrompt(req, brief), sink)
		if err != nil {
			return payload, err
		}
		payload.CoverLetter = &result
	}

	// Stages 8 and 9 (assembly and the final emit) happen in Run once the
	// hold is settled.
	return payload, nil
}

func (o *Orchestrator) researchBrief(ctx context.Context, req core.GenerationRequest, sink emitter) string {
	if o.Research == nil {
		return ""
	}

	sink.Emit(fmt.Sprintf("Researching %s…", req.Company))

	brief, err := o.Research.Brief(ctx, req.Company, req.Role, req.JobDescription)
	if err != nil {
		slog.Warn("research brief unavailable", "company", req.Company, "error", err)
		sink.Emit("Research unavailable, continuing without a brief.")
		return ""
	}

	return brief
}

func (o *Orchestrator) generateCV(ctx context.Context, owner core.OwnerID, req core.GenerationRequest, brief string, sink emitter) (ArtifactResult, error) {
	sink.Emit("Generating tailored CV…")

	content, err := o.Gateway.Generate(ctx, cvPrompt(req, brief), gateway.ClassStandard, o.overloadNotice(sink))
	if err != nil {
		return ArtifactResult{}, fmt.Errorf("generate cv: %w", err)
	}

	document := normalizeMarkup(content)

	sink.Emit(fmt.Sprintf("Rendering CV to %d pages…", o.Fitter.TargetPages()))
	outcome := o.Fitter.FitToPages(ctx, document, o.overloadNotice(sink))

	version := core.GenerationVersion{
		GenerationID: req.GenerationID,
		Content:      outcome.Content,
		Status:       core.VersionSuccess,
		PageCount:    outcome.PageCount,
		CreatedAt:    o.clock().UTC(),
	}

	result := ArtifactResult{
		Name:         string(core.ArtifactCV),
		GenerationID: req.GenerationID,
		Content:      outcome.Content,
		Status:       core.VersionSuccess,
		PageCount:    outcome.PageCount,
	}

	if !outcome.OK {
		version.Status = core.VersionFailed
		version.ErrorMessage = outcome.ErrorMessage
		version.LogExcerpt = outcome.LogExcerpt
		version.ErrorLines = outcome.ErrorLines
		version.Errors = outcome.Errors

		result.Status = core.VersionFailed
		result.Error = outcome.ErrorMessage

		sink.Emit("CV rendered with problems; it is saved and can be repaired with auto-fix.")
		o.logChat(owner, req, "warning", "cv render failed: "+outcome.ErrorMessage)
	} else {
		sink.Emit("CV ready.")
	}

	if err := o.Sessions.UpsertVersion(req.SessionID, owner, core.ArtifactCV, version); err != nil {
		slog.Error("could not persist cv version", "session_id", req.SessionID, "error", err)
	}

	if ref, err := o.Artifacts.Save(owner, req.SessionID, string(core.ArtifactCV), outcome.Content); err == nil {
		result.URL = ref.URL
	} else {
		slog.Warn("could not store cv artifact", "session_id", req.SessionID, "error", err)
	}

	return result, nil
}

func (o *Orchestrator) changeSummary(ctx context.Context, req core.GenerationRequest, newCV string) string {
	if req.CVSource == "" || newCV == "" {
		return ""
	}

	summary, err := o.Gateway.Generate(ctx, changeSummaryPrompt(req.CVSource, newCV), gateway.ClassLight, nil)
	if err != nil {
		slog.Warn("change summary omitted", "session_id", req.SessionID, "error", err)
		return ""
	}

	return strings.TrimSpace(summary)
}

func (o *Orchestrator) enrichContact(ctx context.Context, req core.GenerationRequest, sink emitter) core.Contact {
	contact := req.Contact

	if req.Mode != core.ModeColdOutreach || contact.Complete() || o.Enricher == nil {
		return contact
	}

	sink.Emit("Looking up contact details…")

	enriched, err := o.Enricher.Enrich(ctx, req.Company, contact)
	if err != nil {
		slog.Warn("contact enrichment unavailable", "company", req.Company, "error", err)
		sink.Emit("Contact lookup unavailable, using the details you provided.")
		return contact
	}

	return enriched
}

func (o *Orchestrator) contactSummary(ctx context.Context, req core.GenerationRequest, contact core.Contact) string {
	if req.Mode != core.ModeColdOutreach || contact.Empty() {
		return ""
	}

	summary, err := o.Gateway.Generate(ctx, contactSummaryPrompt(req.Company, contact), gateway.ClassLight, nil)
	if err != nil {
		slog.Warn("contact summary omitted", "session_id", req.SessionID, "error", err)
		return ""
	}

	return strings.TrimSpace(summary)
}

func (o *Orchestrator) generateOutreach(ctx context.Context, owner core.OwnerID, req core.GenerationRequest, kind core.ArtifactKind, prompt string, sink emitter) (ArtifactResult, error) {
	label := "cover letter"
	if kind == core.ArtifactColdEmail {
		label = "cold email"
	}
	sink.Emit(fmt.Sprintf("Writing %s…", label))

	content, err := o.Gateway.Generate(ctx, prompt, gateway.ClassStandard, o.overloadNotice(sink))
	if err != nil {
		return ArtifactResult{}, fmt.Errorf("generate %s: %w", label, err)
	}

	content = strings.TrimSpace(content)

	result := ArtifactResult{
		Name:         string(kind),
		GenerationID: req.GenerationID,
		Content:      content,
		Status:       core.VersionSuccess,
	}

	if err := o.Sessions.UpsertVersion(req.SessionID, owner, kind, core.GenerationVersion{
		GenerationID: req.GenerationID,
		Content:      content,
		Status:       core.VersionSuccess,
		CreatedAt:    o.clock().UTC(),
	}); err != nil {
		slog.Error("could not persist version", "session_id", req.SessionID, "kind", kind, "error", err)
	}

	if ref, err := o.Artifacts.Save(owner, req.SessionID, string(kind), content); err == nil {
		result.URL = ref.URL
	} else {
		slog.Warn("could not store artifact", "session_id", req.SessionID, "kind", kind, "error", err)
	}

	return result, nil
}

// overloadNotice returns the one-shot callback surfacing a retry notice the
// first time the provider reports overload during a call.
func (o *Orchestrator) overloadNotice(sink emitter) func() {
	return func() {
		sink.Emit("The AI provider is busy — retrying with a backup model…")
	}
}

func (o *Orchestrator) logChat(owner core.OwnerID, req core.GenerationRequest, level, message string) {
	err := o.Sessions.AppendChatLog(req.SessionID, owner, core.ChatLogEntry{
		Level:   level,
		Message: message,
		Payload: map[string]any{"generation_id": string(req.GenerationID)},
	})
	if err != nil {
		slog.Warn("could not append chat log", "session_id", req.SessionID, "error", err)
	}
}

type emitter interface {
	Emit(line string)
}

func contextLine(req core.GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Preparing application for %s at %s", req.Role, req.Company)
	if req.Contact.Name != "" {
		fmt.Fprintf(&b, " (contact: %s)", req.Contact.Name)
	}
	if req.Mode == core.ModeColdOutreach {
		b.WriteString(" — cold outreach")
	}
	return b.String()
}

// normalizeMarkup strips the markdown fencing models tend to wrap LaTeX in.
func normalizeMarkup(content string) string {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```latex")
		trimmed = strings.TrimPrefix(trimmed, "```tex")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}

	return strings.TrimSpace(trimmed)
}
