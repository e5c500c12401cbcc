package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Identity API",
        "description": "Multi-tenant identity provisioning and leave workflows",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Login and token introspection"},
        {"name": "Provisioning", "description": "Entity and login identity provisioning"},
        {"name": "Leaves", "description": "Student and teacher leave workflows"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate with a login ID and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK, data is a LoginResponse", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current identity",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/owners": {
            "post": {
                "tags": ["Provisioning"],
                "summary": "Provision a platform owner",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionAdminRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tenants/{tenantId}/admins": {
            "post": {
                "tags": ["Provisioning"],
                "summary": "Provision a college administrator",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "tenantId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionAdminRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Tenant not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tenants/{tenantId}/students": {
            "post": {
                "tags": ["Provisioning"],
                "summary": "Provision a student and optionally its guardian",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "tenantId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate roll number or e-mail", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tenants/{tenantId}/students/bulk": {
            "post": {
                "tags": ["Provisioning"],
                "summary": "Provision students in bulk",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "tenantId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkProvisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-row outcome", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tenants/{tenantId}/teachers": {
            "post": {
                "tags": ["Provisioning"],
                "summary": "Provision a teacher",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "tenantId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionTeacherRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tenants/{tenantId}/parents": {
            "post": {
                "tags": ["Provisioning"],
                "summary": "Provision a guardian",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "tenantId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionGuardianRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves/students": {
            "get": {
                "tags": ["Leaves"],
                "summary": "List student leave requests visible to the caller",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "tenantId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Leaves"],
                "summary": "Submit a student leave request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLeaveRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves/students/{id}": {
            "get": {
                "tags": ["Leaves"],
                "summary": "Get a student leave request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not visible to the caller", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves/students/{id}/guardian-approval": {
            "patch": {
                "tags": ["Leaves"],
                "summary": "Record the guardian decision",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LeaveDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Decision already recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves/students/{id}/supervisor-approval": {
            "patch": {
                "tags": ["Leaves"],
                "summary": "Record the supervisor decision",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LeaveDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Decision already recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves/teachers": {
            "get": {
                "tags": ["Leaves"],
                "summary": "List teacher leave requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]},
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Leaves"],
                "summary": "Submit a teacher leave request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLeaveRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves/teachers/{id}/status": {
            "patch": {
                "tags": ["Leaves"],
                "summary": "Decide a teacher leave request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LeaveDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["login_id", "password"],
            "properties": {
                "login_id": {"type": "string", "example": "ST0001A1010125"},
                "password": {"type": "string"}
            }
        },
        "Guardian": {
            "type": "object",
            "properties": {
                "fullName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ProvisionStudentRequest": {
            "type": "object",
            "required": ["courseId", "rollNumber", "fullName", "email"],
            "properties": {
                "courseId": {"type": "string"},
                "rollNumber": {"type": "string"},
                "fullName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "password": {"type": "string"},
                "guardian": {"$ref": "#/definitions/Guardian"}
            }
        },
        "BulkProvisionRequest": {
            "type": "object",
            "properties": {
                "rows": {"type": "array", "items": {"$ref": "#/definitions/ProvisionStudentRequest"}}
            }
        },
        "ProvisionGuardianRequest": {
            "type": "object",
            "required": ["fullName", "email"],
            "properties": {
                "fullName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "password": {"type": "string"},
                "studentId": {"type": "string"}
            }
        },
        "ProvisionTeacherRequest": {
            "type": "object",
            "required": ["employeeId", "fullName", "email"],
            "properties": {
                "employeeId": {"type": "string"},
                "fullName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "expertise": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ProvisionAdminRequest": {
            "type": "object",
            "required": ["fullName", "email"],
            "properties": {
                "fullName": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateLeaveRequest": {
            "type": "object",
            "required": ["fromDate", "toDate", "reason"],
            "properties": {
                "fromDate": {"type": "string", "format": "date-time"},
                "toDate": {"type": "string", "format": "date-time"},
                "reason": {"type": "string"},
                "comments": {"type": "string"}
            }
        },
        "LeaveDecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "decision": {"type": "string", "enum": ["APPROVED", "REJECTED"]},
                "comments": {"type": "string"}
            }
        },
        "LoginResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string", "example": "Bearer"},
                "expires_in": {"type": "integer"},
                "expires_at": {"type": "string", "format": "date-time"},
                "user": {
                    "type": "object",
                    "properties": {
                        "id": {"type": "string"},
                        "login_id": {"type": "string"},
                        "email": {"type": "string"},
                        "full_name": {"type": "string"},
                        "role": {"type": "string"},
                        "tenant_id": {"type": "string"},
                        "student_id": {"type": "string"},
                        "teacher_id": {"type": "string"},
                        "parent_id": {"type": "string"}
                    }
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
