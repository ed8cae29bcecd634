package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/arjuunns/Smart-hostel/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleWarden  = "warden"
	RoleGuard   = "guard"
	RoleAdmin   = "admin"
)

// Capabilities checked at the API boundary.
const (
	CapLeaveApply     = "leave:apply"
	CapLeaveReview    = "leave:review"
	CapGateScan       = "gate:scan"
	CapAttendanceMark = "attendance:mark"
	CapCalendarManage = "calendar:manage"
	CapRiskDashboard  = "risk:dashboard"
	CapStatsRefresh   = "stats:refresh"
	CapReportsExport  = "reports:export"
	CapUsersManage    = "users:manage"
)

var (
	AllRoles = []string{RoleStudent, RoleWarden, RoleGuard, RoleAdmin}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Warden", Value: RoleWarden},
		{Name: "Guard", Value: RoleGuard},
		{Name: "Admin", Value: RoleAdmin},
	}

	capabilities = map[string][]string{
		RoleStudent: {CapLeaveApply},
		RoleWarden: {
			CapLeaveReview, CapAttendanceMark, CapCalendarManage,
			CapRiskDashboard, CapStatsRefresh, CapReportsExport,
		},
		RoleGuard: {CapGateScan},
		RoleAdmin: {
			CapLeaveApply, CapLeaveReview, CapGateScan, CapAttendanceMark, CapCalendarManage,
			CapRiskDashboard, CapStatsRefresh, CapReportsExport, CapUsersManage,
		},
	}
)

// RoleCan reports whether `role` grants capability `cpb`.
func RoleCan(role, cpb string) bool {
	for _, c := range capabilities[role] {
		if c == cpb {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	HostelBlock  string    `json:"hostel_block"`
	Room         string    `json:"room"`
	Phone        string    `json:"phone"`
	ParentPhone  string    `json:"parent_phone"`
	Course       string    `json:"course"`
	Year         int       `json:"year"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u User) Can(cpb string) bool { return RoleCan(u.Role, cpb) }

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsWarden() bool  { return u.Role == RoleWarden }
func (u User) IsGuard() bool   { return u.Role == RoleGuard }
func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }

// Person identifies the user in error reports.
func (u User) Person() core.Person {
	return core.Person{ID: u.ID, Username: u.Name, Email: u.Email}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"omitempty,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,role"`
	HostelBlock     string `json:"hostel_block"`
	Room            string `json:"room"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	ParentPhone     string `json:"parent_phone" validate:"omitempty,phone"`
	Course          string `json:"course"`
	Year            int    `json:"year" validate:"gte=0,lte=10"`
}

func (nu *NewUser) clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.HostelBlock = core.CleanString(nu.HostelBlock)
	nu.Room = core.CleanString(nu.Room)
	nu.Phone = core.CleanString(nu.Phone)
	nu.ParentPhone = core.CleanString(nu.ParentPhone)
	nu.Course = core.CleanString(nu.Course)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name        string `json:"name"`
	HostelBlock string `json:"hostel_block"`
	Room        string `json:"room"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
	ParentPhone string `json:"parent_phone" validate:"omitempty,phone"`
	Course      string `json:"course"`
	Year        *int   `json:"year" validate:"omitempty,gte=0,lte=10"`
	IsActive    *bool  `json:"is_active"`
	Role        string `json:"role" validate:"omitempty,role"`
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search      string
	Role        string
	HostelBlock string
	IsActive    *bool
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.HostelBlock = core.CleanString(qf.HostelBlock)
}
