// Package mqtt connects aide to an MQTT broker so home automation can
// see what the assistant is doing.
//
// On every (re-)connect the publisher sends retained Home Assistant
// discovery configs for a handful of diagnostic sensors and an "online"
// birth message on the availability topic; a will message flips it to
// "offline" on unexpected disconnects. Sensor states are refreshed on a
// fixed interval.
//
// Background deliveries (a reminder firing, the daily briefing, a mail
// digest) are published as JSON to aide/<device>/events/<kind>.
//
// Connection management uses Eclipse Paho v2's [autopaho] package.
package mqtt
