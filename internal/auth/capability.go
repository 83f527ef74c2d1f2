package auth

import "strings"

// Role is a role tag stored in user_roles.
type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleSACCoordinator   Role = "SAC_COORDINATOR"
	RoleCoCoordinator    Role = "CO_COORDINATOR"
	RoleDepartmentAdmin  Role = "DEPARTMENT_ADMIN"
	RoleClubCoordinator  Role = "CLUB_COORDINATOR"
	RoleClubAdvisor      Role = "CLUB_ADVISOR"
	RoleEventOrganizer   Role = "EVENT_ORGANIZER"
	RoleStudentVolunteer Role = "STUDENT_VOLUNTEER"
	RoleFaculty          Role = "FACULTY"
	RoleStudent          Role = "STUDENT"
)

func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	switch role {
	case RoleAdmin, RoleSACCoordinator, RoleCoCoordinator, RoleDepartmentAdmin, RoleClubCoordinator,
		RoleClubAdvisor, RoleEventOrganizer, RoleStudentVolunteer, RoleFaculty, RoleStudent:
		return role, true
	default:
		return "", false
	}
}

type Capability int

const (
	ManageAttendance Capability = iota + 1
	ExportAttendance
	ManageClubs
)

func (c Capability) String() string {
	switch c {
	case ManageAttendance:
		return "manage_attendance"
	case ExportAttendance:
		return "export_attendance"
	case ManageClubs:
		return "manage_clubs"
	default:
		return "unknown"
	}
}

var capabilityRoles = map[Capability][]Role{
	ManageAttendance: {RoleAdmin, RoleClubCoordinator, RoleClubAdvisor, RoleEventOrganizer},
	ExportAttendance: {RoleAdmin, RoleClubCoordinator, RoleClubAdvisor, RoleEventOrganizer},
	ManageClubs:      {RoleAdmin, RoleSACCoordinator},
}

// Principal is an authenticated user together with the roles loaded for it.
type Principal struct {
	UserID int64
	Roles  []Role
}

func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

func HasCapability(p Principal, c Capability) bool {
	for _, role := range capabilityRoles[c] {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// GrantRole returns roles with role appended once.
func GrantRole(roles []Role, role Role) []Role {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}

// RevokeRole returns roles without role.
func RevokeRole(roles []Role, role Role) []Role {
	out := roles[:0:0]
	for _, r := range roles {
		if r != role {
			out = append(out, r)
		}
	}
	return out
}
