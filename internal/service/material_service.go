package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
)

const (
	defaultMaterialMaxBytes = 5 << 20
	minTopicWordLength      = 3
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(\S.*)$`)
	numberedHeading = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+(\S.*)$`)
)

// MaterialService ingests course material and links its sections to rubric topics.
type MaterialService interface {
	Ingest(ctx context.Context, payload dto.MaterialIngestRequest) (dto.MaterialResponse, error)
	IngestFile(ctx context.Context, courseID, topic string, file *multipart.FileHeader) (dto.MaterialResponse, error)
	ListSections(ctx context.Context, courseID string) ([]dto.SectionResponse, error)
	LinkTopics(ctx context.Context, courseID string) (dto.TopicLinkResponse, error)
}

type materialService struct {
	courses   repository.CourseRepository
	materials repository.MaterialRepository
	criteria  repository.CriterionRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	maxBytes  int64
	now       func() time.Time
}

// NewMaterialService constructs the material service. maxBytes <= 0 selects the default
// upload limit.
func NewMaterialService(
	courses repository.CourseRepository,
	materials repository.MaterialRepository,
	criteria repository.CriterionRepository,
	validate *validator.Validate,
	maxBytes int64,
	logger zerolog.Logger,
) MaterialService {
	if maxBytes <= 0 {
		maxBytes = defaultMaterialMaxBytes
	}
	return &materialService{
		courses:   courses,
		materials: materials,
		criteria:  criteria,
		validator: validate,
		logger:    logger.With().Str("component", "material_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-kg/internal/service/material"),
		maxBytes:  maxBytes,
		now:       time.Now,
	}
}

// SectionDraft is a heading-delimited chunk of text prior to storage.
type SectionDraft struct {
	Title   string
	Content string
}

// SplitSections cuts text at heading lines. Markdown headings (`# Title`) and numbered
// headings (`1 Introduction`, `2.1 Methods`) start a new section; a numbered line only counts
// when its title starts with an uppercase letter. Text before the first heading becomes an
// untitled section when it is not blank.
func SplitSections(text string) []SectionDraft {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	sections := make([]SectionDraft, 0)
	var title string
	var body []string
	started := false

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if started || content != "" {
			sections = append(sections, SectionDraft{Title: title, Content: content})
		}
	}

	for _, line := range lines {
		heading, ok := headingTitle(line)
		if !ok {
			body = append(body, line)
			continue
		}
		flush()
		title, body, started = heading, nil, true
	}
	flush()
	return sections
}

func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if match := markdownHeading.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1]), true
	}
	if match := numberedHeading.FindStringSubmatch(trimmed); match != nil {
		first, _ := utf8.DecodeRuneInString(match[1])
		if unicode.IsUpper(first) {
			return trimmed, true
		}
	}
	return "", false
}

func (s *materialService) Ingest(ctx context.Context, payload dto.MaterialIngestRequest) (dto.MaterialResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "material.ingest", trace.WithAttributes(attribute.String("course.id", payload.CourseID)))
	defer span.End()

	if _, err := s.courses.GetByID(ctx, payload.CourseID); err != nil {
		span.RecordError(err)
		return dto.MaterialResponse{}, notFound(err, ErrCourseNotFound, payload.CourseID)
	}

	material := models.SourceMaterial{
		CourseID:  payload.CourseID,
		Topic:     strings.TrimSpace(payload.Topic),
		Title:     strings.TrimSpace(payload.Title),
		Text:      payload.Text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.materials.CreateMaterial(ctx, &material); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create material")
		return dto.MaterialResponse{}, err
	}

	drafts := SplitSections(payload.Text)
	sections := make([]models.Section, 0, len(drafts))
	for i, draft := range drafts {
		section := models.Section{
			SourceMaterialID: material.ID,
			CourseID:         material.CourseID,
			Title:            draft.Title,
			Content:          draft.Content,
			Order:            i,
		}
		if err := s.materials.CreateSection(ctx, &section); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create section")
			return dto.MaterialResponse{}, err
		}
		sections = append(sections, section)
	}

	span.SetAttributes(attribute.Int("sections", len(sections)))
	s.logger.Info().
		Str("material_id", material.ID).
		Str("course_id", material.CourseID).
		Int("sections", len(sections)).
		Msg("material ingested")

	return dto.NewMaterialResponse(material, sections), nil
}

func (s *materialService) IngestFile(ctx context.Context, courseID, topic string, file *multipart.FileHeader) (dto.MaterialResponse, error) {
	if file == nil {
		return dto.MaterialResponse{}, ErrUnsupportedMaterial
	}
	if file.Size > s.maxBytes {
		return dto.MaterialResponse{}, ErrMaterialTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return dto.MaterialResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxBytes+1)); err != nil {
		return dto.MaterialResponse{}, err
	}
	if int64(buf.Len()) > s.maxBytes {
		return dto.MaterialResponse{}, ErrMaterialTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	if !mime.Is("text/plain") && !strings.HasPrefix(mime.String(), "text/") {
		return dto.MaterialResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedMaterial, mime.String())
	}

	title := strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename))
	return s.Ingest(ctx, dto.MaterialIngestRequest{
		CourseID: courseID,
		Topic:    topic,
		Title:    title,
		Text:     buf.String(),
	})
}

func (s *materialService) ListSections(ctx context.Context, courseID string) ([]dto.SectionResponse, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, notFound(err, ErrCourseNotFound, courseID)
	}
	sections, err := s.materials.ListSections(ctx, courseID)
	if err != nil {
		return nil, err
	}
	items := make([]dto.SectionResponse, 0, len(sections))
	for _, section := range sections {
		items = append(items, dto.NewSectionResponse(section))
	}
	return items, nil
}

// LinkTopics connects each section of the course to the rubric criteria whose words appear in
// its content. The edge weight is the share of criterion words found. Existing edges are kept.
func (s *materialService) LinkTopics(ctx context.Context, courseID string) (dto.TopicLinkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "material.link_topics", trace.WithAttributes(attribute.String("course.id", courseID)))
	defer span.End()

	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		span.RecordError(err)
		return dto.TopicLinkResponse{}, notFound(err, ErrCourseNotFound, courseID)
	}

	sections, err := s.materials.ListSections(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		return dto.TopicLinkResponse{}, err
	}
	criteria, err := s.criteria.List(ctx)
	if err != nil {
		span.RecordError(err)
		return dto.TopicLinkResponse{}, err
	}

	sectionIDs := make([]string, 0, len(sections))
	for _, section := range sections {
		sectionIDs = append(sectionIDs, section.ID)
	}
	existing, err := s.materials.TopicEdges(ctx, sectionIDs)
	if err != nil {
		span.RecordError(err)
		return dto.TopicLinkResponse{}, err
	}
	linked := make(map[[2]string]struct{}, len(existing))
	for _, edge := range existing {
		linked[[2]string{edge.From, edge.To}] = struct{}{}
	}

	criterionWords := make([]map[string]struct{}, len(criteria))
	for i, criterion := range criteria {
		criterionWords[i] = topicWords(criterion.Name + " " + criterion.Description)
	}

	created := 0
	for _, section := range sections {
		content := Tokenize(section.Title + " " + section.Content)
		for i, criterion := range criteria {
			words := criterionWords[i]
			if len(words) == 0 {
				continue
			}
			if _, ok := linked[[2]string{section.ID, criterion.ID}]; ok {
				continue
			}
			overlap := overlapCount(words, content)
			if overlap == 0 {
				continue
			}
			weight := float64(overlap) / float64(len(words))
			if err := s.materials.LinkTopic(ctx, section.ID, criterion.ID, weight); err != nil {
				span.RecordError(err)
				return dto.TopicLinkResponse{}, err
			}
			linked[[2]string{section.ID, criterion.ID}] = struct{}{}
			created++
		}
	}

	span.SetAttributes(attribute.Int("links", created))
	return dto.TopicLinkResponse{CourseID: courseID, Linked: created}, nil
}

func topicWords(text string) map[string]struct{} {
	words := Tokenize(text)
	for word := range words {
		if utf8.RuneCountInString(word) < minTopicWordLength {
			delete(words, word)
		}
	}
	return words
}
