package rest

/**
 * Environment variables
 */

// REST server env names
const RestHostEnvName = "GEMM_PERF_HOST"
const RestPortEnvName = "GEMM_PERF_PORT"

/**
 * Parameters
 */

// REST server address used when neither env nor config sets one
const DefaultRestHost = "0.0.0.0"
const DefaultRestPort = "8080"

// time allowed for in-flight requests on shutdown
const DefaultShutdownTimeoutSeconds = 5
