package ble

// InfiniTime characteristic UUIDs.
const (
	BatteryLevelUUID     = "00002a19-0000-1000-8000-00805f9b34fb"
	FirmwareRevisionUUID = "00002a26-0000-1000-8000-00805f9b34fb"
	HeartRateUUID        = "00002a37-0000-1000-8000-00805f9b34fb"

	NewAlertUUID          = "00002a46-0000-1000-8000-00805f9b34fb"
	NotificationEventUUID = "00020001-78fc-48fe-8e23-433b3a1942d0"

	FSVersionUUID  = "adaf0100-4669-6c65-5472-616e73666572"
	FSTransferUUID = "adaf0200-4669-6c65-5472-616e73666572"

	DFUControlPointUUID = "00001531-1212-efde-1523-785feabcd123"
	DFUPacketUUID       = "00001532-1212-efde-1523-785feabcd123"

	MediaEventsUUID = "00000001-78fc-48fe-8e23-433b3a1942d0"
	MediaStatusUUID = "00000002-78fc-48fe-8e23-433b3a1942d0"
	MediaArtistUUID = "00000003-78fc-48fe-8e23-433b3a1942d0"
	MediaTrackUUID  = "00000004-78fc-48fe-8e23-433b3a1942d0"
	MediaAlbumUUID  = "00000005-78fc-48fe-8e23-433b3a1942d0"

	StepCountUUID = "00030001-78fc-48fe-8e23-433b3a1942d0"
	MotionUUID    = "00030002-78fc-48fe-8e23-433b3a1942d0"
)
