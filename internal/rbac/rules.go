package rbac

// Default policy. Students only ever touch their own attempt; staff run
// quizzes they invigilate; admin is unrestricted.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:lookup",
		"attempt:enter",
		"attempt:extra",
		"attempt:answer",
		"attempt:suspicion",
		"attempt:submit",
		"attempt:result-own",
		"artifact:download-own",
		"profile:view-own",
		"user:change_password",
	},
	"staff": {
		"quiz:lookup",
		"quiz:create",
		"quiz:view",
		"quiz:assign",
		"quiz:report",
		"attempt:view-all",
		"bank:*",
		"artifact:download",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
