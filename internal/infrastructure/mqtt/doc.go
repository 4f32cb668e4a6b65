// Package mqtt provides the event bus connection of the device service.
//
// This package manages:
//   - Connection to the broker with a fixed-delay retry and reconnect loop
//   - Message publishing with QoS and size validation
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - A bounded worker pool that runs inbound message handlers
//   - Last Will and Testament (LWT) for offline detection
//
// # Reconnection
//
// Paho's built-in reconnect is disabled. When the connection drops the
// client waits reconnect.delay and retries at that same interval until it
// succeeds or Close is called. Only one reconnect loop runs at a time.
//
// # Inbound messages
//
// Handlers never run on the paho network goroutine. Each message is copied
// onto a queue of dispatch.queue_size entries served by dispatch.workers
// goroutines. A full queue drops the message with a warning. Handler panics
// are recovered and logged.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("mcs/events/deviceService/+", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
