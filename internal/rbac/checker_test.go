package rbac

import "testing"

func TestCheckerHas(t *testing.T) {
	c := NewChecker(nil)

	if !c.Has("student", "attempt:answer") {
		t.Fatal("student should answer own attempt")
	}
	if c.Has("student", "quiz:create") {
		t.Fatal("student must not create quizzes")
	}
	if !c.Has("staff", "bank:import") {
		t.Fatal("bank:* should cover bank:import")
	}
	if !c.Has("admin", "anything:at-all") {
		t.Fatal("admin wildcard should cover everything")
	}
	if c.Has("ghost-role", "quiz:lookup") {
		t.Fatal("unknown role should have nothing")
	}
}

func TestCheckerAny(t *testing.T) {
	c := NewChecker(nil)
	if !c.Any("student", "attempt:view-all", "attempt:result-own") {
		t.Fatal("student holds attempt:result-own")
	}
	if c.Any("student", "quiz:create", "users:list") {
		t.Fatal("student holds neither")
	}
}
