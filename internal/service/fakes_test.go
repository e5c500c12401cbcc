package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-identity-api/internal/models"
	"github.com/noah-isme/sma-identity-api/internal/repository"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
)

// memoryStore is an in-memory provisioning store. Unique keys are reserved as
// soon as a scope writes them, like a unique index, and released on rollback.
type memoryStore struct {
	mu        sync.Mutex
	tenants   map[string]*models.Tenant
	courses   map[string]*models.Course
	students  map[string]*models.Student
	teachers  map[string]*models.Teacher
	parents   map[string]*models.Parent
	users     map[string]*models.User
	loginIDs  map[string]string
	emails    map[string]string
	rolls     map[string]string
	employees map[string]string
	sequences map[string]int64

	// beforeCreateUser runs before each identity insert; a non-nil error fails the insert.
	beforeCreateUser func(store *memoryStore, user *models.User) error
	// panicOnRoll panics when a student with this roll number is created.
	panicOnRoll string
	atomicCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tenants:   map[string]*models.Tenant{},
		courses:   map[string]*models.Course{},
		students:  map[string]*models.Student{},
		teachers:  map[string]*models.Teacher{},
		parents:   map[string]*models.Parent{},
		users:     map[string]*models.User{},
		loginIDs:  map[string]string{},
		emails:    map[string]string{},
		rolls:     map[string]string{},
		employees: map[string]string{},
		sequences: map[string]int64{},
	}
}

func (m *memoryStore) addTenant(id, shortCode string) {
	m.tenants[id] = &models.Tenant{ID: id, ShortCode: shortCode, Name: shortCode, Active: true}
}

func (m *memoryStore) addCourse(tenantID, id string) {
	m.courses[id] = &models.Course{ID: id, TenantID: tenantID, Code: strings.ToUpper(id)}
}

// reserveLoginID simulates a row committed by another writer.
func (m *memoryStore) reserveLoginID(loginID string) {
	m.loginIDs[loginID] = "external-" + loginID
}

func (m *memoryStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memoryStore) studentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students)
}

func (m *memoryStore) parentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parents)
}

func (m *memoryStore) sortedLoginIDs(role models.UserRole) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for _, u := range m.users {
		if u.Role == role {
			ids = append(ids, u.LoginID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *memoryStore) FindCourse(_ context.Context, tenantID, courseID string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[courseID]
	if !ok || course.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

func (m *memoryStore) RollNumberExists(_ context.Context, tenantID, rollNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rolls[tenantID+"|"+rollNumber]
	return ok, nil
}

func (m *memoryStore) EmployeeIDExists(_ context.Context, tenantID, employeeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.employees[tenantID+"|"+employeeID]
	return ok, nil
}

func (m *memoryStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.emails[strings.ToLower(email)]
	return ok, nil
}

func (m *memoryStore) Atomic(ctx context.Context, fn func(scope repository.ProvisioningScope) error) error {
	m.mu.Lock()
	m.atomicCalls++
	m.mu.Unlock()

	scope := &memoryScope{store: m}
	if err := fn(scope); err != nil {
		scope.rollback()
		return err
	}
	scope.commit()
	return nil
}

type memoryScope struct {
	store    *memoryStore
	students []*models.Student
	teachers []*models.Teacher
	parents  []*models.Parent
	users    []*models.User
	links    map[string]string
	reserved []func()
}

func (s *memoryScope) reserve(index map[string]string, key, owner string, taken error) error {
	if _, exists := index[key]; exists {
		return taken
	}
	index[key] = owner
	s.reserved = append(s.reserved, func() { delete(index, key) })
	return nil
}

func (s *memoryScope) rollback() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, release := range s.reserved {
		release()
	}
}

func (s *memoryScope) commit() {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range s.students {
		m.students[st.ID] = st
	}
	for _, te := range s.teachers {
		m.teachers[te.ID] = te
	}
	for _, pa := range s.parents {
		m.parents[pa.ID] = pa
	}
	for _, u := range s.users {
		m.users[u.ID] = u
	}
	for studentID, parentID := range s.links {
		if st, ok := m.students[studentID]; ok {
			st.ParentID = &parentID
		}
	}
}

func (s *memoryScope) NextSequence(_ context.Context, scope string, role models.UserRole) (int64, error) {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s", scope, role)
	m.sequences[key]++
	return m.sequences[key], nil
}

func (s *memoryScope) FindTenant(_ context.Context, id string) (*models.Tenant, error) {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.tenants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tenant, nil
}

func (s *memoryScope) FindStudent(_ context.Context, id string) (*models.Student, error) {
	for _, st := range s.students {
		if st.ID == id {
			return st, nil
		}
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.students[id]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryScope) FindTeacher(_ context.Context, id string) (*models.Teacher, error) {
	for _, te := range s.teachers {
		if te.ID == id {
			return te, nil
		}
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if te, ok := m.teachers[id]; ok {
		return te, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryScope) FindParent(_ context.Context, id string) (*models.Parent, error) {
	for _, pa := range s.parents {
		if pa.ID == id {
			return pa, nil
		}
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if pa, ok := m.parents[id]; ok {
		return pa, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryScope) TakenLoginIDs(_ context.Context, base string) ([]string, error) {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.loginIDs {
		if id == base || (strings.HasPrefix(id, base) && len(id) == len(base)+2) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memoryScope) CreateStudent(_ context.Context, student *models.Student) error {
	if s.store.panicOnRoll != "" && student.RollNumber == s.store.panicOnRoll {
		panic("corrupt row " + student.RollNumber)
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := s.reserve(m.rolls, student.TenantID+"|"+student.RollNumber, student.ID, repository.ErrDuplicateRollNumber); err != nil {
		return err
	}
	s.students = append(s.students, student)
	return nil
}

func (s *memoryScope) CreateTeacher(_ context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := s.reserve(m.employees, teacher.TenantID+"|"+teacher.EmployeeID, teacher.ID, repository.ErrDuplicateEmployeeID); err != nil {
		return err
	}
	s.teachers = append(s.teachers, teacher)
	return nil
}

func (s *memoryScope) CreateParent(_ context.Context, parent *models.Parent) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	s.parents = append(s.parents, parent)
	return nil
}

func (s *memoryScope) LinkStudentParent(ctx context.Context, studentID, parentID string) error {
	if _, err := s.FindStudent(ctx, studentID); err != nil {
		return err
	}
	if s.links == nil {
		s.links = map[string]string{}
	}
	s.links[studentID] = parentID
	return nil
}

func (s *memoryScope) CreateUser(_ context.Context, user *models.User) error {
	m := s.store
	if hook := m.beforeCreateUser; hook != nil {
		m.mu.Lock()
		err := hook(m, user)
		m.mu.Unlock()
		if err != nil {
			return err
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := s.reserve(m.loginIDs, user.LoginID, user.ID, repository.ErrLoginIDTaken); err != nil {
		return err
	}
	if err := s.reserve(m.emails, strings.ToLower(user.Email), user.ID, repository.ErrEmailTaken); err != nil {
		delete(m.loginIDs, user.LoginID)
		s.reserved = s.reserved[:len(s.reserved)-1]
		return err
	}
	s.users = append(s.users, user)
	return nil
}

// staticTenants resolves tenants from the memory store without caching.
type staticTenants struct {
	store *memoryStore
}

func (t staticTenants) Get(_ context.Context, id string) (*models.Tenant, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	tenant, ok := t.store.tenants[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tenant not found")
	}
	return tenant, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []CredentialNotice
}

func (n *recordingNotifier) NotifyCredentials(_ context.Context, notices ...CredentialNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notices...)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}
