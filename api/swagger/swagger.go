package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Cognit Blood Donation API",
        "description": "Blood donation requests with proximity-targeted donor notifications",
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
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "BloodRequests", "description": "Patient requests and their donation sessions"},
        {"name": "DonorResponses", "description": "Transitions on a donor's response record"},
        {"name": "Observability", "description": "Health and counters"}
    ],
    "paths": {
        "/blood-requests": {
            "get": {
                "tags": ["BloodRequests"],
                "summary": "List donation requests",
                "parameters": [
                    {"name": "mine", "in": "query", "type": "boolean"},
                    {"name": "bloodGroup", "in": "query", "type": "string"},
                    {"name": "state", "in": "query", "type": "string", "description": "Comma separated list of OPEN, PARTIALLY_FULFILLED, FULFILLED, EXPIRED, CLOSED"},
                    {"name": "lat", "in": "query", "type": "number"},
                    {"name": "lng", "in": "query", "type": "number"},
                    {"name": "radiusKm", "in": "query", "type": "number"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["BloodRequests"],
                "summary": "Create a blood donation request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateDonationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}": {
            "get": {
                "tags": ["BloodRequests"],
                "summary": "Get a donation request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/extend": {
            "post": {
                "tags": ["BloodRequests"],
                "summary": "Extend the response session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExtendSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/close": {
            "post": {
                "tags": ["BloodRequests"],
                "summary": "Close the response session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/accept": {
            "post": {
                "tags": ["BloodRequests"],
                "summary": "Accept a request as a donor",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AcceptDonationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/responses": {
            "get": {
                "tags": ["BloodRequests"],
                "summary": "List donor responses of a request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/donors/{donorId}/confirm": {
            "post": {
                "tags": ["BloodRequests"],
                "summary": "Confirm or reject a donor by id",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "donorId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmDonationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/audit": {
            "get": {
                "tags": ["BloodRequests"],
                "summary": "Download the audit trail",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blood-requests/{id}/stream": {
            "get": {
                "tags": ["BloodRequests"],
                "summary": "Follow live status updates of a request over a websocket",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "access_token", "in": "query", "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/donor-responses/{id}/reached": {
            "post": {
                "tags": ["DonorResponses"],
                "summary": "Report arrival at the hospital",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/donor-responses/{id}/confirm": {
            "post": {
                "tags": ["DonorResponses"],
                "summary": "Confirm or reject a donation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmDonationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/donor-responses/{id}/dismiss": {
            "post": {
                "tags": ["DonorResponses"],
                "summary": "Dismiss an accepted donor",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Lifecycle and dispatch counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Coordinate": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            }
        },
        "CreateDonationRequest": {
            "type": "object",
            "properties": {
                "patientName": {"type": "string"},
                "bloodGroupName": {"type": "string", "enum": ["A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"]},
                "bagsNeeded": {"type": "integer", "minimum": 1, "maximum": 20},
                "bloodNeededBeforeAt": {"type": "string", "format": "date-time"},
                "sessionEndAt": {"type": "string", "format": "date-time"},
                "hospitalName": {"type": "string"},
                "hospitalAddress": {"type": "string"},
                "hospitalLocation": {"$ref": "#/definitions/Coordinate"}
            },
            "required": ["bloodGroupName", "bagsNeeded", "bloodNeededBeforeAt", "hospitalName", "hospitalLocation"]
        },
        "AcceptDonationRequest": {
            "type": "object",
            "properties": {
                "canDonateBloodBagUpto": {"type": "integer", "minimum": 0, "maximum": 20}
            }
        },
        "ConfirmDonationRequest": {
            "type": "object",
            "properties": {
                "donatedBags": {"type": "integer", "minimum": 0, "maximum": 20},
                "confirm": {"type": "boolean"}
            },
            "required": ["confirm"]
        },
        "ExtendSessionRequest": {
            "type": "object",
            "properties": {
                "sessionEndAt": {"type": "string", "format": "date-time"}
            },
            "required": ["sessionEndAt"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "count": {"type": "integer"}
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
