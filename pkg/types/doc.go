/*
Package types defines the data exchanged with the agrilo backend.

Types mirror the backend's JSON contract: identity (Profile, AuthResponse,
Registration, ProfileUpdate), diagnostics (DiseaseResult, RootDiagnosis,
SoilSample, SoilAnalysis, AnalysisRecord), the analytics aggregate
(AnalyticsSnapshot), sensor data (SoilReading), the assistant (ChatMessage),
and bookings (Booking, Appointment, Order, PaymentVerification).

Profile updates are partial: MergeProfile overlays only the top-level keys
present in a response on top of the cached profile, so fields the update did
not mention survive.

Timestamp tolerates the naive ISO-8601 datetimes the backend emits alongside
RFC 3339 values.
*/
package types
