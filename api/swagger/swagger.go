package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Elective Match API",
        "description": "Assigns students to optional courses with capacity-aware stable matching.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Matching", "description": "Stable matching engine"},
        {"name": "Assignments", "description": "Batch assignment workflow and run exports"},
        {"name": "Weightings", "description": "Prerequisite weightings of optional courses"},
        {"name": "Grades", "description": "Grade event ingestion"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Observability"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/v1/matching/solve": {
            "post": {
                "tags": ["Matching"],
                "summary": "Solve a student-course matching problem",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "Matched", "headers": {"X-Match-Run-ID": {"type": "string"}}, "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/v1/matching/runs/{runId}/assignments": {
            "get": {
                "tags": ["Matching"],
                "summary": "Assignments of a run",
                "parameters": [{"name": "runId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/v1/matching/runs/{runId}/assignments/student/{studentId}": {
            "get": {
                "tags": ["Matching"],
                "summary": "Assignment of one student",
                "parameters": [
                    {"name": "runId", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not assigned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/v1/matching/runs/{runId}/assignments/course/{courseId}": {
            "get": {
                "tags": ["Matching"],
                "summary": "Assignments of one course",
                "parameters": [
                    {"name": "runId", "in": "path", "required": true, "type": "string"},
                    {"name": "courseId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/v1/matching/runs/{runId}/unmatched-students": {
            "get": {
                "tags": ["Matching"],
                "summary": "Students left unassigned",
                "parameters": [{"name": "runId", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/v1/matching/runs/{runId}/full-courses": {
            "get": {
                "tags": ["Matching"],
                "summary": "Courses filled to capacity",
                "parameters": [{"name": "runId", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/v1/matching/runs/{runId}/summary": {
            "get": {
                "tags": ["Matching"],
                "summary": "Counts of a run",
                "parameters": [{"name": "runId", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/v1/matching/health": {
            "get": {
                "tags": ["Matching"],
                "summary": "Engine health",
                "responses": {"200": {"description": "UP"}}
            }
        },
        "/v1/matching/info": {
            "get": {
                "tags": ["Matching"],
                "summary": "Engine version and algorithm",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/assignments/execute-workflow": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Run the batch assignment workflow",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "batchSize", "in": "query", "type": "integer", "description": "Optional courses per batch (default 5)"},
                    {"name": "capacityPerCourse", "in": "query", "type": "integer"},
                    {"name": "concurrency", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Completed", "schema": {"$ref": "#/definitions/WorkflowSummary"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/WorkflowSummary"}},
                    "500": {"description": "Workflow failed", "schema": {"$ref": "#/definitions/WorkflowSummary"}}
                }
            }
        },
        "/api/v1/assignments/runs/{runId}": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Workflow run summary",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "runId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assignments/runs/{runId}/enrollments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Enrollments persisted by a run",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "runId", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/assignments/runs/{runId}/export": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Export run assignments",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "runId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "delivery", "in": "query", "type": "string", "enum": ["attachment", "link"]}
                ],
                "responses": {
                    "200": {"description": "File attachment, or an ExportLink envelope when delivery=link"},
                    "404": {"description": "Unknown run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/{token}": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Download a stored run export via signed token",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File attachment"},
                    "403": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{code}/weightings": {
            "get": {
                "tags": ["Weightings"],
                "summary": "List prerequisite weightings",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "code", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Weightings"],
                "summary": "Replace prerequisite weightings",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceWeightingsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid weightings", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown course", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/grades": {
            "post": {
                "tags": ["Grades"],
                "summary": "Submit grade events",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IngestGradesRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Process and matching counters",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Observability"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "StudentPreference": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "preferences": {"type": "array", "items": {"type": "string"}}
            }
        },
        "CoursePreference": {
            "type": "object",
            "properties": {
                "course_id": {"type": "string"},
                "preferences": {"type": "array", "items": {"type": "string"}},
                "capacity": {"type": "integer"}
            }
        },
        "MatchRequest": {
            "type": "object",
            "properties": {
                "students": {"type": "array", "items": {"$ref": "#/definitions/StudentPreference"}},
                "courses": {"type": "array", "items": {"$ref": "#/definitions/CoursePreference"}},
                "capacity_per_course": {"type": "integer"}
            }
        },
        "Assignment": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "course_id": {"type": "string"},
                "student_preference_rank": {"type": "integer"},
                "course_preference_rank": {"type": "integer"}
            }
        },
        "MatchResult": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "status": {"type": "string", "enum": ["SUCCESS", "ERROR"]},
                "message": {"type": "string"},
                "assignments": {"type": "array", "items": {"$ref": "#/definitions/Assignment"}},
                "unmatched_students": {"type": "array", "items": {"type": "string"}},
                "full_courses": {"type": "array", "items": {"type": "string"}},
                "execution_time_ms": {"type": "integer"},
                "fallback": {"type": "boolean"}
            }
        },
        "WorkflowSummary": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "status": {"type": "string", "enum": ["COMPLETED", "FAILED"]},
                "message": {"type": "string"},
                "batch_size": {"type": "integer"},
                "total_batches": {"type": "integer"},
                "successful_batches": {"type": "integer"},
                "failed_batches": {"type": "integer"},
                "fallback_batches": {"type": "integer"},
                "enrollments_created": {"type": "integer"},
                "execution_time_ms": {"type": "integer"},
                "results": {"type": "object", "additionalProperties": {"$ref": "#/definitions/MatchResult"}},
                "started_at": {"type": "string", "format": "date-time"}
            }
        },
        "WeightingItem": {
            "type": "object",
            "properties": {
                "compulsory_course_code": {"type": "string"},
                "percentage": {"type": "number", "minimum": 0, "maximum": 100}
            }
        },
        "ReplaceWeightingsRequest": {
            "type": "object",
            "properties": {
                "preferences": {"type": "array", "items": {"$ref": "#/definitions/WeightingItem"}}
            }
        },
        "GradeEvent": {
            "type": "object",
            "properties": {
                "student_code": {"type": "string"},
                "course_code": {"type": "string"},
                "grade": {"type": "number", "minimum": 1, "maximum": 10}
            }
        },
        "IngestGradesRequest": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/GradeEvent"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
