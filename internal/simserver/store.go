package simserver

import (
	"sync"

	"github.com/edusync/examroom-client/internal/api"
)

// Store is the simulator's in-memory record of exams, resources, and
// received work files. It exists so the client can be developed against
// the full HTTP boundary without the production backend.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	exams     map[int64]*api.Exam
	resources map[int64][]api.Resource
	works     map[int64][]Work
}

// Work is one received submission.
type Work struct {
	StudentID string
	Matricule string
	Name      string
	FileNames []string
}

func NewStore() *Store {
	return &Store{
		exams:     make(map[int64]*api.Exam),
		resources: make(map[int64][]api.Resource),
		works:     make(map[int64][]Work),
	}
}

// Seed installs a couple of demo exams so the CLIs have something to
// show on first run.
func (s *Store) Seed() {
	s.CreateExam("Algorithmique avancée", "Épreuve finale, documents autorisés")
	id2 := s.CreateExam("Bases de données", "Schéma relationnel et requêtes")
	s.AddResource(id2, api.Resource{Kind: api.ResourceSubject, FileName: "sujet.pdf", URL: "/uploads/sujet.pdf"})
}

// CreateExam registers a new exam and returns its ID.
func (s *Store) CreateExam(title, description string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.exams[s.nextID] = &api.Exam{ID: s.nextID, Title: title, Description: description}
	return s.nextID
}

// GetExam returns one exam, or nil when unknown.
func (s *Store) GetExam(id int64) *api.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam, ok := s.exams[id]; ok {
		copied := *exam
		return &copied
	}
	return nil
}

// ListExams returns every exam ordered by ID.
func (s *Store) ListExams() []api.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Exam, 0, len(s.exams))
	for id := int64(1); id <= s.nextID; id++ {
		if exam, ok := s.exams[id]; ok {
			out = append(out, *exam)
		}
	}
	return out
}

// AddResource attaches a resource to an exam.
func (s *Store) AddResource(examID int64, r api.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[examID] = append(s.resources[examID], r)
}

// ListResources returns the resources of one exam, never nil.
func (s *Store) ListResources(examID int64) []api.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Resource, len(s.resources[examID]))
	copy(out, s.resources[examID])
	return out
}

// AddWork records a received submission and returns the file count.
func (s *Store) AddWork(examID int64, w Work) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works[examID] = append(s.works[examID], w)
	return len(w.FileNames)
}

// Works returns every submission received for one exam.
func (s *Store) Works(examID int64) []Work {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Work, len(s.works[examID]))
	copy(out, s.works[examID])
	return out
}
