package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create students and track selections
-- Version: 001

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    full_name VARCHAR(100) NOT NULL,
    roll_number VARCHAR(20) NOT NULL UNIQUE,
    branch VARCHAR(50) NOT NULL DEFAULT '',
    degree VARCHAR(10) NOT NULL,
    semester SMALLINT NOT NULL,
    academic_year VARCHAR(7) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'enrolled',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_student_status CHECK (status IN ('enrolled', 'graduated', 'left')),
    CONSTRAINT valid_degree CHECK (degree IN ('btech', 'mtech')),
    CONSTRAINT valid_semester CHECK (semester BETWEEN 1 AND 8)
);

CREATE INDEX IF NOT EXISTS idx_students_roll_number ON students(roll_number);
CREATE INDEX IF NOT EXISTS idx_students_semester ON students(semester) WHERE status = 'enrolled';
CREATE INDEX IF NOT EXISTS idx_students_cohort ON students(semester, academic_year) WHERE status = 'enrolled';

-- Per-semester track selections with internship verification outcomes.
CREATE TABLE IF NOT EXISTS track_selections (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    semester SMALLINT NOT NULL,
    track VARCHAR(20) NOT NULL,
    finalized BOOLEAN NOT NULL DEFAULT FALSE,
    verification VARCHAR(20) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_track CHECK (track IN ('internship', 'coursework')),
    CONSTRAINT valid_verification CHECK (verification IN ('pending', 'verified_pass', 'verified_fail')),
    CONSTRAINT one_selection_per_semester UNIQUE (student_id, semester)
);

CREATE INDEX IF NOT EXISTS idx_track_selections_student ON track_selections(student_id);
`

const migration001Down = `
DROP TABLE IF EXISTS track_selections;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE GROUPS AND INVITATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create groups, the shared membership table, and the invitation
-- ledger.
-- Version: 002

CREATE TABLE IF NOT EXISTS groups (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(100) NOT NULL DEFAULT '',
    semester SMALLINT NOT NULL,
    academic_year VARCHAR(7) NOT NULL,
    leader_id UUID NOT NULL REFERENCES students(id),
    status VARCHAR(20) NOT NULL DEFAULT 'forming',
    min_members SMALLINT NOT NULL,
    max_members SMALLINT NOT NULL,
    allocated_faculty_id VARCHAR(64) NOT NULL DEFAULT '',
    project_id UUID,
    finalized_at TIMESTAMP WITH TIME ZONE,
    finalized_by UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_group_status CHECK (status IN
        ('forming', 'invitations_sent', 'open', 'complete', 'finalized', 'locked', 'disbanded')),
    CONSTRAINT valid_member_bounds CHECK (min_members >= 1 AND max_members >= min_members)
);

CREATE INDEX IF NOT EXISTS idx_groups_semester ON groups(semester, academic_year);
CREATE INDEX IF NOT EXISTS idx_groups_leader ON groups(leader_id);
CREATE INDEX IF NOT EXISTS idx_groups_status ON groups(status) WHERE status NOT IN ('locked', 'disbanded');

-- Shared membership rows: a group's roster and a student's membership
-- history are two views over this one table.
CREATE TABLE IF NOT EXISTS group_memberships (
    id BIGSERIAL PRIMARY KEY,
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    semester SMALLINT NOT NULL,
    role VARCHAR(10) NOT NULL DEFAULT 'member',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_member_role CHECK (role IN ('leader', 'member'))
);

CREATE INDEX IF NOT EXISTS idx_memberships_group ON group_memberships(group_id);
CREATE INDEX IF NOT EXISTS idx_memberships_student ON group_memberships(student_id);

-- At most one active membership per (student, semester).
CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_membership
    ON group_memberships(student_id, semester) WHERE active;

-- Invitation ledger: every invitation is a permanent record, resolution only
-- ever flips the status.
CREATE TABLE IF NOT EXISTS invitations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    role VARCHAR(10) NOT NULL DEFAULT 'member',
    inviter_id UUID NOT NULL REFERENCES students(id),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    reason VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_invitation_status CHECK (status IN
        ('pending', 'accepted', 'rejected', 'auto_rejected')),
    CONSTRAINT valid_invitation_role CHECK (role IN ('leader', 'member'))
);

CREATE INDEX IF NOT EXISTS idx_invitations_group ON invitations(group_id);
CREATE INDEX IF NOT EXISTS idx_invitations_student ON invitations(student_id);
CREATE INDEX IF NOT EXISTS idx_invitations_pending ON invitations(student_id) WHERE status = 'pending';

-- At most one pending invitation per (group, student).
CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_invitation
    ON invitations(group_id, student_id) WHERE status = 'pending';
`

const migration002Down = `
DROP TABLE IF EXISTS invitations;
DROP TABLE IF EXISTS group_memberships;
DROP TABLE IF EXISTS groups;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE PROJECTS AND ALLOCATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create projects, preference lists, the allocation audit chain,
-- and the student-side project reference mirror.
-- Version: 003

CREATE TABLE IF NOT EXISTS projects (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    title VARCHAR(200) NOT NULL,
    student_id UUID REFERENCES students(id),
    group_id UUID REFERENCES groups(id),
    semester SMALLINT NOT NULL,
    academic_year VARCHAR(7) NOT NULL,
    faculty_id VARCHAR(64),
    allocated_by VARCHAR(30) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'registered',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_project_status CHECK (status IN
        ('registered', 'faculty_allocated', 'active', 'completed', 'cancelled')),
    -- Exactly one owner: solo student XOR group.
    CONSTRAINT exactly_one_owner CHECK ((student_id IS NULL) != (group_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_projects_group ON projects(group_id) WHERE group_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_projects_student ON projects(student_id) WHERE student_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_projects_faculty ON projects(faculty_id) WHERE faculty_id IS NOT NULL;

-- One project per owner per semester.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_group_project
    ON projects(group_id, semester) WHERE group_id IS NOT NULL AND status != 'cancelled';
CREATE UNIQUE INDEX IF NOT EXISTS uniq_solo_project
    ON projects(student_id, semester) WHERE student_id IS NOT NULL AND status != 'cancelled';

-- Ordered faculty preference list, fixed at registration.
CREATE TABLE IF NOT EXISTS project_preferences (
    project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    faculty_id VARCHAR(64) NOT NULL,
    priority SMALLINT NOT NULL,

    PRIMARY KEY (project_id, priority),
    CONSTRAINT valid_priority CHECK (priority >= 1),
    CONSTRAINT unique_faculty_per_project UNIQUE (project_id, faculty_id)
);

CREATE INDEX IF NOT EXISTS idx_preferences_faculty ON project_preferences(faculty_id);

-- Allocation audit chain: records are never overwritten, a re-allocation
-- creates a new record and marks the old one superseded.
CREATE TABLE IF NOT EXISTS faculty_allocations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    faculty_id VARCHAR(64),
    outcome VARCHAR(20) NOT NULL DEFAULT 'pending',
    method VARCHAR(30) NOT NULL DEFAULT '',
    superseded_by UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_allocation_outcome CHECK (outcome IN
        ('pending', 'allocated', 'rejected', 'cancelled'))
);

CREATE INDEX IF NOT EXISTS idx_allocations_project ON faculty_allocations(project_id);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_current_allocation
    ON faculty_allocations(project_id) WHERE superseded_by IS NULL;

-- Student-side mirror of project ownership, kept in sync by the repositories
-- and repaired by the reconciliation job.
CREATE TABLE IF NOT EXISTS student_project_refs (
    id BIGSERIAL PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    project_id UUID NOT NULL,
    semester SMALLINT NOT NULL,
    role VARCHAR(10) NOT NULL DEFAULT 'member',
    status VARCHAR(20) NOT NULL DEFAULT 'registered',

    CONSTRAINT unique_student_project UNIQUE (student_id, project_id)
);

CREATE INDEX IF NOT EXISTS idx_project_refs_student ON student_project_refs(student_id);
CREATE INDEX IF NOT EXISTS idx_project_refs_project ON student_project_refs(project_id);
`

const migration003Down = `
DROP TABLE IF EXISTS student_project_refs;
DROP TABLE IF EXISTS faculty_allocations;
DROP TABLE IF EXISTS project_preferences;
DROP TABLE IF EXISTS projects;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE WORKFLOW CONFIGS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create the workflow configuration store.
-- Version: 004

CREATE TABLE IF NOT EXISTS workflow_configs (
    semester SMALLINT NOT NULL,
    track VARCHAR(20) NOT NULL DEFAULT '',
    min_group_members SMALLINT NOT NULL,
    max_group_members SMALLINT NOT NULL,
    faculty_preference_limit SMALLINT NOT NULL,
    allowed_faculty_categories JSONB NOT NULL DEFAULT '[]'::jsonb,
    registration_opens_at TIMESTAMP WITH TIME ZONE,
    registration_closes_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (semester, track),
    CONSTRAINT valid_config_bounds CHECK
        (min_group_members >= 1 AND max_group_members >= min_group_members),
    CONSTRAINT valid_preference_limit CHECK (faculty_preference_limit >= 1)
);
`

const migration004Down = `
DROP TABLE IF EXISTS workflow_configs;
`
