package rbac

// RolePermissions lists what each role adds on top of the roles below it.
// Group-level rules (ownership, consent) are enforced by the quiz engine;
// this table only gates which endpoints a role may reach at all.
var RolePermissions = map[Role][]string{
	RoleStudent: {
		"quiz:attempt",
		"quiz:answer",
		"quiz:feedback-own",
		"assignment:view-assigned",
		"consent:manage",
	},
	RoleTutor: {
		"assignment:create",
		"assignment:manage",
		"assignment:view-all",
		"attempt:mark-incomplete",
		"group:manage",
	},
	RoleTeacher: {
		"assignment:export",
	},
	RoleAdmin: {
		"*", // everything
	},
}
