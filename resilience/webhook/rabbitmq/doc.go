// Package rabbitmq provides a RabbitMQ-backed delivery queue.
//
// Scheduled retries use a wait queue with per-message TTLs: a delayed job is
// published to the wait queue with its delay as the message expiration, and
// the wait queue dead-letters expired messages back into the main delivery
// exchange. The broker therefore owns retry timing, so a worker restart
// never loses a scheduled retry.
package rabbitmq
