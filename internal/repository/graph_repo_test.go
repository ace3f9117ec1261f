package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/graphstore/sqlstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

func setupGraphStore(t *testing.T) graphstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := sqlstore.New(db, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestCriterionRepositoryFindOrCreateDeduplicates(t *testing.T) {
	store := setupGraphStore(t)
	repo := NewCriterionRepository(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, len(ids))
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			criterion, err := repo.FindOrCreate(ctx, models.RubricCriterion{Name: "Clarity", Description: "Explains reasoning"})
			ids[i], errs[i] = criterion.ID, err
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], id)
	}

	other, err := repo.FindOrCreate(ctx, models.RubricCriterion{Name: "Clarity", Description: "Different wording"})
	require.NoError(t, err)
	require.NotEqual(t, ids[0], other.ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCourseRepositoryEnrollmentAndTeaching(t *testing.T) {
	store := setupGraphStore(t)
	people := NewPeopleRepository(store)
	courses := NewCourseRepository(store)
	ctx := context.Background()

	instructor := models.Instructor{Name: "Dr. Ada"}
	require.NoError(t, people.CreateInstructor(ctx, &instructor))
	course := models.Course{ClassCode: "CS101", Title: "Intro"}
	require.NoError(t, courses.Create(ctx, &course))
	require.NoError(t, courses.LinkInstructor(ctx, instructor.ID, course.ID))

	ids, err := courses.CourseIDsForInstructor(ctx, instructor.ID)
	require.NoError(t, err)
	require.Equal(t, []string{course.ID}, ids)

	student := models.Student{Name: "Ben"}
	require.NoError(t, people.CreateStudent(ctx, &student))
	require.NoError(t, courses.Enroll(ctx, student.ID, course.ID))
	require.NoError(t, courses.Enroll(ctx, student.ID, course.ID))

	enrolled, err := courses.EnrolledStudentIDs(ctx, course.ID)
	require.NoError(t, err)
	require.Equal(t, []string{student.ID}, enrolled)

	found, err := courses.FindByClassCode(ctx, "CS101")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, course.ID, found[0].ID)

	err = courses.Enroll(ctx, instructor.ID, course.ID)
	require.ErrorIs(t, err, models.ErrSchemaViolation)
}

func TestMistakeRepositoryLinksAndLists(t *testing.T) {
	store := setupGraphStore(t)
	people := NewPeopleRepository(store)
	submissions := NewSubmissionRepository(store)
	mistakes := NewMistakeRepository(store)
	materials := NewMaterialRepository(store)
	ctx := context.Background()

	student := models.Student{Name: "Cy"}
	require.NoError(t, people.CreateStudent(ctx, &student))
	submission := models.Submission{StudentID: student.ID, CourseID: "courses/c1"}
	require.NoError(t, submissions.Create(ctx, &submission))

	mistake := models.Mistake{Question: "Q1", StudentID: student.ID, SubmissionID: submission.ID, CourseID: "courses/c1"}
	require.NoError(t, mistakes.Create(ctx, &mistake))
	require.NoError(t, mistakes.LinkStudent(ctx, student.ID, mistake.ID))
	require.NoError(t, mistakes.LinkSubmission(ctx, submission.ID, mistake.ID))

	has, err := submissions.HasRecordedMistakes(ctx, submission.ID)
	require.NoError(t, err)
	require.True(t, has)

	section := models.Section{CourseID: "courses/c1", Title: "Loops", Order: 1}
	require.NoError(t, materials.CreateSection(ctx, &section))
	require.NoError(t, mistakes.LinkSection(ctx, mistake.ID, section.ID, 0.75))

	edges, err := mistakes.SectionEdges(ctx, []string{mistake.ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.InDelta(t, 0.75, models.EdgeStrength(edges[0].Attrs, 0), 1e-9)

	none, err := mistakes.SectionEdges(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, none)

	err = mistakes.LinkSection(ctx, mistake.ID, "sections/missing", 0.5)
	require.ErrorIs(t, err, graphstore.ErrNotFound)

	listed, err := mistakes.List(ctx, "courses/c1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, []string{}, listed[0].RubricCriteriaNames)

	cluster := 3
	require.NoError(t, mistakes.Annotate(ctx, mistake.ID, graphstore.Document{"clusterId": cluster}))
	reloaded, err := mistakes.GetMany(ctx, []string{mistake.ID, "mistakes/missing"})
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	require.NotNil(t, reloaded[0].ClusterID)
	require.Equal(t, 3, *reloaded[0].ClusterID)

	bySubmission, err := mistakes.ListBySubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, bySubmission, 1)
	require.Equal(t, mistake.ID, bySubmission[0].ID)

	require.NoError(t, mistakes.Delete(ctx, mistake.ID))
	has, err = submissions.HasRecordedMistakes(ctx, submission.ID)
	require.NoError(t, err)
	require.False(t, has)
	edges, err = mistakes.SectionEdges(ctx, []string{mistake.ID})
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestMaterialRepositorySectionsAndPageRank(t *testing.T) {
	store := setupGraphStore(t)
	materials := NewMaterialRepository(store)
	ctx := context.Background()

	material := models.SourceMaterial{CourseID: "courses/c1", Title: "Notes"}
	require.NoError(t, materials.CreateMaterial(ctx, &material))
	second := models.Section{SourceMaterialID: material.ID, CourseID: "courses/c1", Title: "B", Order: 2}
	first := models.Section{SourceMaterialID: material.ID, CourseID: "courses/c1", Title: "A", Order: 1}
	require.NoError(t, materials.CreateSection(ctx, &second))
	require.NoError(t, materials.CreateSection(ctx, &first))

	ordered, err := materials.ListSectionsByMaterial(ctx, material.ID)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	require.Equal(t, "A", ordered[0].Title)

	require.NoError(t, materials.SetPageRank(ctx, first.ID, 0.42))
	sections, err := materials.GetSections(ctx, []string{first.ID})
	require.NoError(t, err)
	require.InDelta(t, 0.42, sections[0].Importance(), 1e-9)
}
