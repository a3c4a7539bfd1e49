package signing_test

// Signatures produced with the sample song key in testdata/song.pem by an
// independent implementation (openssl pkeyutl / dgst).
const (
	rainMessage = "The rain in Spain falls mainly on the Plain"

	rainRawSignature = "58416bb66ea247afaa99db193536ebc12e8bae1c34d99500769e729d2d9af00e0066ae626c865e0d6c38bb7fb10c5de8838a76b958e78e31ceb8bcb36c919a8f2127acf3cb14018735562901ed8feedf320ace4b57ae1340b817bba0d1f0f1b382176e76a5ee848d406a43b80ad2cb44bae816a63358cbb76241ca77e80583f9ae78c8ef5176539ecc211bfef46b02bf06d85dcb097e86d5f5bc24a81be73efc956fc59d9489024b72578269dc2b18d71ee072750c86c4d6778ed68cfac848bb54886034b46821b47567241985ff4cd6094e9ff4e17054a1f3811103dfc65e00519ff58bca7c5bb1ab1ad281028668507f1161b265f92bb2ae226a6732864595"

	rainPKCS1v15Signature = "343437a08d9de822112f38d2d09ad217110f241c294a2f8125238d9f9fb1c5d298e64f296446a0ab18d4bdddb01c7766332f78af2b05d9f151af205dbb355642aad16c989e0643fbb6b876682c8d4e79ba8f611e264cf33a605ff7a7527fec3c61eca6e337120a27e53f2ec3d23f68c58817a3dbb0290f6ae4cf516f3e3e8df6f8cec332bb4777a15453bdd943062cad189ba218205ba33f6d46cd0e8df907fbeb2b2392cef5b78b1d8de145cc3f28db4ca9971333596448f5bb81867f0213f849a90b01f1d97a88e26f23043c79035818a4838798f332656f8e0dce34b25dc1493a724d28260a43089a1a1cbade598e47f41ae371f065ccc14379bc24b87622"

	emptyRawSignature = "a87d004f6f850043299c238e2b3d154000460a8749defcbe5b72c2fce233412ac5e5b9742b93dd9b813d4414d4af3312243564fa55f76b13dd2b4c2bf65e51ac91a22e1ce603a78e34e37e4330f321eea45d51678f3344c1d7f4eb2d4f62617492a67c34556d1c991f03f8ed00ac1a35484d9fb3c46e2fd8c23bc3f61ea2f3783c8f4f333db6c92c812a9494a6cf0565306fe5089428635045c2b8f55dafd3a5a2846b656031b97f39deb1187bb2a5ec8496887431c082f8ac579d7d33f2943c1b3b54e25635c55b2fdcd2bf5213b3638435f05c928511cf3eba74d9b0ecdad6dc426c243add51aaa2a73ddd9e29281f0606607b97519ec129be6d0c3761bf4f"

	// The raw signature of this message starts with a zero byte, so a
	// big-integer hex conversion would drop two characters.
	leadingZeroMessage   = "leading-zero-134"
	leadingZeroSignature = "0093437681134717debf5abee44dd5bb59baab68f275b582911bea23571d5f35fd3b27d12575e786ff69fd5522e42e60af5e737a6d47ecc2eef0cae3a988af461a57b4edc7f8e93bc586b99885c5866a9c0b1c59811baaaa5aae4a3b7c197718f477a065b8828d5cc1ee83cb44301f78a3e7cbf23e7cabac817bad39f8796b47b42faab99b340dfba819a1331f5a323d176cb034a3b7bbc3416f9806e06e33213a08cbd58f81b4516be7b0abd8208fada910bf43d91bac6394f454fb0ee6d26186be81cc59b08cbc1f10d8dda7d6ccba932acb3fe21215ac5331101c84cca399bbb206984d5a2fa859351386d217a024da07bceec2ddfc3116464fa31bd703a9"
)
